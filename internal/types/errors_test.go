package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		token  string
	}{
		{"bad header", ErrBadHeader, 500, "bad_http_header"},
		{"bad protocol", ErrBadProtocol, 500, "bad_http_protocol"},
		{"undecodable", ErrBadRequest, 500, "bad_request"},
		{"too large", ErrHeaderTooLarge, 500, "header_too_large"},
		{"method", ErrMethodNotAllowed, 501, "bad_method"},
		{"path", ErrBadPath, 400, "bad_path"},
		{"missing", ErrNotFound, 404, "not_found"},
		{"wrapped", fmt.Errorf("open report.txt: %w", ErrNotFound), 404, "not_found"},
		{"foreign", errors.New("boom"), 500, "bad_request"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, token := StatusOf(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.token, token)
		})
	}
}

func TestRequestWantsChunked(t *testing.T) {
	req := Request{Headers: map[string]string{"Transfer-Encoding": "chunked"}}
	assert.True(t, req.WantsChunked())

	// header names are case-sensitive
	req = Request{Headers: map[string]string{"transfer-encoding": "chunked"}}
	assert.False(t, req.WantsChunked())

	req = Request{Headers: map[string]string{"Transfer-Encoding": "gzip"}}
	assert.False(t, req.WantsChunked())

	assert.False(t, Request{}.WantsChunked())
}
