// Package util provides small helpers shared by the grant packages: scope
// string parsing and safe truncation of values before they are logged.
package util
