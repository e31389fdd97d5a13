package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrMalformedChunk = errors.New("wire: malformed chunk")

// ChunkedReader decodes a chunked body whose size lines carry the payload
// length in decimal, as written by Streamer.
type ChunkedReader struct {
	r      *bufio.Reader
	remain int64
	done   bool
}

func NewChunkedReader(r *bufio.Reader) *ChunkedReader {
	return &ChunkedReader{r: r}
}

func (c *ChunkedReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}

	if c.remain == 0 {
		size, err := c.readSize()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			c.done = true
			// final chunk is followed by an empty line
			if err := c.expectCRLF(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		c.remain = size
	}

	if int64(len(p)) > c.remain {
		p = p[:c.remain]
	}
	n, err := c.r.Read(p)
	c.remain -= int64(n)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	if err != nil {
		return n, err
	}
	if c.remain == 0 {
		if err := c.expectCRLF(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *ChunkedReader) readSize() (int64, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}

	digits, ok := strings.CutSuffix(line, "\r\n")
	if !ok {
		return 0, fmt.Errorf("%w: size line %q", ErrMalformedChunk, line)
	}
	size, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: size line %q", ErrMalformedChunk, line)
	}
	return size, nil
}

func (c *ChunkedReader) expectCRLF() error {
	var crlf [2]byte
	if _, err := io.ReadFull(c.r, crlf[:]); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	if string(crlf[:]) != "\r\n" {
		return fmt.Errorf("%w: missing CRLF after data", ErrMalformedChunk)
	}
	return nil
}
