package oauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// maxRequestBodySize bounds the body read by NewRequestFromHTTP
const maxRequestBodySize = 1 << 20

// NewRequestFromHTTP translates a net/http request into a neutral Request.
// Form-encoded and JSON object bodies are supported; JSON values are
// flattened to strings (arrays become repeated values).
func NewRequestFromHTTP(r *http.Request) (*Request, error) {
	req := &Request{
		Method:  r.Method,
		Headers: r.Header.Clone(),
		Query:   r.URL.Query(),
		Body:    url.Values{},
	}
	if r.Body == nil || r.Method == http.MethodGet {
		return req, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		if len(raw) == 0 {
			return req, nil
		}
		// Numbers keep their literal form, 1000000 is not "1e+06"
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			return nil, ErrInvalidRequest("Request body is not a JSON object").WithCause(err)
		}
		if dec.More() {
			return nil, ErrInvalidRequest("Request body has data after the JSON object")
		}
		for key, value := range doc {
			switch v := value.(type) {
			case []any:
				for _, item := range v {
					req.Body.Add(key, fmt.Sprint(item))
				}
			case nil:
			default:
				req.Body.Set(key, fmt.Sprint(v))
			}
		}
	default:
		r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodySize)
		if err := r.ParseForm(); err != nil {
			return nil, ErrInvalidRequest("Request body could not be parsed").WithCause(err)
		}
		req.Body = r.PostForm
	}
	return req, nil
}

// Write serializes the response onto a net/http ResponseWriter
func (r *Response) Write(w http.ResponseWriter) error {
	for key, values := range r.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if r.Body == nil {
		w.WriteHeader(r.Status)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.Status)
	return json.NewEncoder(w).Encode(r.Body)
}

// WriteError writes err as an OAuth error response
func WriteError(w http.ResponseWriter, err error) error {
	return AsError(err).Response().Write(w)
}
