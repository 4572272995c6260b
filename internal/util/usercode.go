package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// UserCodeAlphabet avoids vowels and look-alike characters (RFC 8628 Section 6.1)
const UserCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

const userCodeLength = 8

// GenerateUserCode returns a random device flow user code such as "BDFG-HJKL"
func GenerateUserCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(UserCodeAlphabet)))
	for i := range userCodeLength {
		if i == userCodeLength/2 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate user code: %w", err)
		}
		b.WriteByte(UserCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeUserCode drops dashes and surrounding space and upper-cases code,
// so that "bdfg-hjkl", "BDFGHJKL" and " BDFG-HJKL " compare equal
func NormalizeUserCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
