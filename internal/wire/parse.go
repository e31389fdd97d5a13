package wire

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ColeHoward/filedrop/internal/types"
)

const (
	DefaultHeaderLimit = 1024
	Protocol           = "HTTP/1.1"
)

// reads the request line and header block up to and including the blank line.
// a head cut short by EOF is returned as-is; a head longer than limit fails
// with ErrHeaderTooLarge. other read errors return what was read so far.
func ReadHead(r *bufio.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultHeaderLimit
	}

	head := make([]byte, 0, 256)
	lineStart := 0
	for {
		chunk, err := r.ReadSlice('\n')
		head = append(head, chunk...)
		if len(head) > limit {
			return nil, types.ErrHeaderTooLarge
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			// line longer than the reader's buffer, keep accumulating it
			continue
		case errors.Is(err, io.EOF):
			return head, nil
		case err != nil:
			return head, err
		}

		if string(head[lineStart:]) == "\r\n" {
			return head, nil
		}
		lineStart = len(head)
	}
}

// turns a raw request head into a Request
func Parse(head []byte) (types.Request, error) {
	if !utf8.Valid(head) {
		return types.Request{}, types.ErrBadRequest
	}

	lines := strings.Split(string(head), "\r\n")

	requestLine := strings.Split(lines[0], " ")
	if len(requestLine) != 3 {
		return types.Request{}, types.ErrBadHeader
	}
	if requestLine[2] != Protocol {
		return types.Request{}, types.ErrBadProtocol
	}

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		// blank and malformed lines simply don't split into a pair
		parts := strings.Split(line, ": ")
		if len(parts) == 2 {
			headers[parts[0]] = parts[1]
		}
	}

	return types.Request{
		Method:   requestLine[0],
		Path:     requestLine[1],
		Protocol: requestLine[2],
		Headers:  headers,
	}, nil
}
