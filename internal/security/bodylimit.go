package security

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/sejoli-chipin/internal/common"
)

// ErrBodyTooLarge is returned by ReadBody when the payload exceeds the limit.
var ErrBodyTooLarge = errors.New("security: request body too large")

type rawBodyKey struct{}

// BodyLimit enforces a maximum request payload size and keeps the exact bytes
// read so signature checks see the body as sent.
type BodyLimit struct {
	Max int64
}

// Middleware rejects requests exceeding the configured limit with HTTP 413.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		buf, err := ReadBody(r, b.Max)
		switch {
		case errors.Is(err, ErrBodyTooLarge):
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
			return
		case err != nil:
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), rawBodyKey{}, buf))
		next.ServeHTTP(w, r)
	})
}

// ReadBody drains at most max bytes from r.Body and replaces it with a
// rewindable copy.
func ReadBody(r *http.Request, max int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	if max > 0 && r.ContentLength > max {
		return nil, ErrBodyTooLarge
	}
	var reader io.Reader = r.Body
	if max > 0 {
		reader = io.LimitReader(r.Body, max+1)
	}
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if max > 0 && int64(len(buf)) > max {
		return nil, ErrBodyTooLarge
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buf))
	r.ContentLength = int64(len(buf))
	return buf, nil
}

// RawBody returns the body captured by BodyLimit, reading it directly when the
// middleware did not run.
func RawBody(r *http.Request) ([]byte, error) {
	if buf, ok := r.Context().Value(rawBodyKey{}).([]byte); ok {
		return buf, nil
	}
	return ReadBody(r, 0)
}
