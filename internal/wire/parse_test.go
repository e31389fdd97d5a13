package wire

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ColeHoward/filedrop/internal/types"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		head    string
		want    types.Request
		wantErr error
	}{
		{
			name: "plain GET",
			head: "GET /download/report.txt HTTP/1.1\r\n\r\n",
			want: types.Request{
				Method:   "GET",
				Path:     "/download/report.txt",
				Protocol: "HTTP/1.1",
				Headers:  map[string]string{},
			},
		},
		{
			name: "headers",
			head: "GET /download/a HTTP/1.1\r\nHost: localhost\r\nTransfer-Encoding: chunked\r\n\r\n",
			want: types.Request{
				Method:   "GET",
				Path:     "/download/a",
				Protocol: "HTTP/1.1",
				Headers: map[string]string{
					"Host":              "localhost",
					"Transfer-Encoding": "chunked",
				},
			},
		},
		{
			name: "duplicate header last wins",
			head: "GET / HTTP/1.1\r\nX-Mode: one\r\nX-Mode: two\r\n\r\n",
			want: types.Request{
				Method:   "GET",
				Path:     "/",
				Protocol: "HTTP/1.1",
				Headers:  map[string]string{"X-Mode": "two"},
			},
		},
		{
			name: "keys keep their case",
			head: "GET / HTTP/1.1\r\nhost: a\r\nHost: b\r\n\r\n",
			want: types.Request{
				Method:   "GET",
				Path:     "/",
				Protocol: "HTTP/1.1",
				Headers:  map[string]string{"host": "a", "Host": "b"},
			},
		},
		{
			name: "malformed header lines are skipped",
			head: "GET / HTTP/1.1\r\nNoSeparator\r\nTight:value\r\nA: b: c\r\nOk: yes\r\n\r\n",
			want: types.Request{
				Method:   "GET",
				Path:     "/",
				Protocol: "HTTP/1.1",
				Headers:  map[string]string{"Ok": "yes"},
			},
		},
		{
			name: "no trailing blank line",
			head: "POST /download/x HTTP/1.1",
			want: types.Request{
				Method:   "POST",
				Path:     "/download/x",
				Protocol: "HTTP/1.1",
				Headers:  map[string]string{},
			},
		},
		{name: "two tokens", head: "GET /\r\n\r\n", wantErr: types.ErrBadHeader},
		{name: "four tokens", head: "GET / HTTP/1.1 extra\r\n\r\n", wantErr: types.ErrBadHeader},
		{name: "double space", head: "GET  / HTTP/1.1\r\n\r\n", wantErr: types.ErrBadHeader},
		{name: "empty", head: "", wantErr: types.ErrBadHeader},
		{name: "HTTP/1.0", head: "GET / HTTP/1.0\r\n\r\n", wantErr: types.ErrBadProtocol},
		{name: "lowercase protocol", head: "GET / http/1.1\r\n\r\n", wantErr: types.ErrBadProtocol},
		{name: "invalid utf-8", head: "GET /\xff\xfe HTTP/1.1\r\n\r\n", wantErr: types.ErrBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := Parse([]byte(tc.head))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, req)
		})
	}
}

func TestReadHead(t *testing.T) {
	t.Run("stops at blank line", func(t *testing.T) {
		br := bufio.NewReader(strings.NewReader("GET / HTTP/1.1\r\nHost: x\r\n\r\nbody"))

		head, err := ReadHead(br, 1024)
		require.NoError(t, err)
		assert.Equal(t, "GET / HTTP/1.1\r\nHost: x\r\n\r\n", string(head))

		rest, err := io.ReadAll(br)
		require.NoError(t, err)
		assert.Equal(t, "body", string(rest))
	})

	t.Run("EOF before blank line", func(t *testing.T) {
		br := bufio.NewReader(strings.NewReader("GET / HTTP/1.1\r\nHost: x"))

		head, err := ReadHead(br, 1024)
		require.NoError(t, err)
		assert.Equal(t, "GET / HTTP/1.1\r\nHost: x", string(head))
	})

	t.Run("empty connection", func(t *testing.T) {
		head, err := ReadHead(bufio.NewReader(strings.NewReader("")), 1024)
		require.NoError(t, err)
		assert.Empty(t, head)
	})

	t.Run("too large", func(t *testing.T) {
		raw := "GET / HTTP/1.1\r\nX-Fill: " + strings.Repeat("a", 2000) + "\r\n\r\n"

		_, err := ReadHead(bufio.NewReader(strings.NewReader(raw)), 1024)
		assert.ErrorIs(t, err, types.ErrHeaderTooLarge)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		raw := "GET / HTTP/1.1\r\n\r\n"

		head, err := ReadHead(bufio.NewReader(strings.NewReader(raw)), len(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, string(head))
	})

	t.Run("line longer than reader buffer", func(t *testing.T) {
		raw := "GET /download/" + strings.Repeat("b", 100) + " HTTP/1.1\r\n\r\n"

		head, err := ReadHead(bufio.NewReaderSize(strings.NewReader(raw), 16), 1024)
		require.NoError(t, err)
		assert.Equal(t, raw, string(head))
	})

	t.Run("read error keeps partial head", func(t *testing.T) {
		r := io.MultiReader(strings.NewReader("GET / HTTP/1.1\r\n"), errReader{io.ErrClosedPipe})

		head, err := ReadHead(bufio.NewReader(r), 1024)
		assert.ErrorIs(t, err, io.ErrClosedPipe)
		assert.Equal(t, "GET / HTTP/1.1\r\n", string(head))
	})
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}
