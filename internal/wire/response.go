package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/ColeHoward/filedrop/internal/types"
)

const BlockSize = 256 * 1024

var statusText = map[int]string{
	200: "OK",
	400: "Bad Request",
	404: "Not Found",
	500: "Internal Server Error",
	501: "Not Implemented",
}

var (
	ErrUnknownStatus = errors.New("wire: status code has no reason phrase")
	ErrOutOfOrder    = errors.New("wire: response written out of order")
)

// avoid allocating a new block for every streamed file
var blockPool = &sync.Pool{
	New: func() any {
		b := make([]byte, BlockSize)
		return &b
	},
}

// returns the reason phrase for a status code this server produces
func StatusText(code int) (string, bool) {
	text, ok := statusText[code]
	return text, ok
}

type State int

const (
	StateIdle State = iota
	StateStatusSent
	StateFramingSent
	StateBodyStreaming
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStatusSent:
		return "status_sent"
	case StateFramingSent:
		return "framing_sent"
	case StateBodyStreaming:
		return "body_streaming"
	case StateDone:
		return "done"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Streamer writes one response onto a connection. Each step must follow the
// previous one: status, framing, body, Finish.
type Streamer struct {
	w       *bufio.Writer
	state   State
	chunked bool
	written int64
}

func NewStreamer(w io.Writer) *Streamer {
	return &Streamer{w: bufio.NewWriter(w)}
}

func (s *Streamer) State() State {
	return s.state
}

// body bytes written so far, excluding chunk framing
func (s *Streamer) Written() int64 {
	return s.written
}

func (s *Streamer) advance(from, to State) error {
	if s.state != from {
		return fmt.Errorf("%w: %s -> %s", ErrOutOfOrder, s.state, to)
	}
	s.state = to
	return nil
}

func (s *Streamer) WriteStatus(code int) error {
	reason, ok := StatusText(code)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, code)
	}
	if err := s.advance(StateIdle, StateStatusSent); err != nil {
		return err
	}
	_, err := fmt.Fprintf(s.w, "%s %d %s\r\n", Protocol, code, reason)
	return err
}

// announces a file body, as Content-Length or as chunked
func (s *Streamer) WriteFileFraming(size int64, chunked bool) error {
	if err := s.advance(StateStatusSent, StateFramingSent); err != nil {
		return err
	}
	s.chunked = chunked
	if chunked {
		_, err := s.w.WriteString("Transfer-Encoding: chunked\r\n\r\n")
		return err
	}
	_, err := fmt.Fprintf(s.w, "Content-Length: %d\r\n\r\n", size)
	return err
}

// writes a complete fixed-length error body
func (s *Streamer) WriteErrorBody(text string) error {
	if err := s.advance(StateStatusSent, StateBodyStreaming); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "Content-Length: %d\r\n\r\n%s", len(text), text); err != nil {
		return err
	}
	s.written = int64(len(text))
	return nil
}

// copies r to the client block by block until EOF. a read failure ends the
// body early and is returned wrapped in ReadError; the response can still be
// finished normally afterwards.
func (s *Streamer) StreamBody(r io.Reader) error {
	if err := s.advance(StateFramingSent, StateBodyStreaming); err != nil {
		return err
	}

	bp := blockPool.Get().(*[]byte)
	defer blockPool.Put(bp)
	block := *bp

	for {
		n, rerr := r.Read(block)
		if n > 0 {
			if err := s.writeBlock(block[:n]); err != nil {
				return err
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return &ReadError{Err: rerr}
		}
		if n == 0 {
			return nil
		}
	}
}

func (s *Streamer) writeBlock(b []byte) error {
	if s.chunked {
		if _, err := fmt.Fprintf(s.w, "%d\r\n", len(b)); err != nil {
			return err
		}
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	s.written += int64(len(b))
	if s.chunked {
		if _, err := s.w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return nil
}

// terminates the body, writes the trailing CRLF and flushes
func (s *Streamer) Finish() error {
	if err := s.advance(StateBodyStreaming, StateDone); err != nil {
		return err
	}
	if s.chunked {
		if _, err := s.w.WriteString("0\r\n\r\n"); err != nil {
			return err
		}
	}
	if _, err := s.w.WriteString("\r\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// ReadError reports a file read failure that cut a body short.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return "wire: body truncated: " + e.Err.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Response is everything needed to answer one connection.
type Response struct {
	Status  int
	File    *types.ResolvedFile
	Chunked bool
	// body token sent when File is nil
	Text string
}

// writes resp to w from status line to final flush. it returns the number of
// body bytes written; a *ReadError means the body was cut short but the
// response was still terminated and flushed.
func WriteResponse(w io.Writer, resp Response) (int64, error) {
	s := NewStreamer(w)
	if err := s.WriteStatus(resp.Status); err != nil {
		return 0, err
	}

	var bodyErr error
	if resp.File != nil {
		if err := s.WriteFileFraming(resp.File.Size, resp.Chunked); err != nil {
			return s.Written(), err
		}
		bodyErr = s.StreamBody(resp.File.File)
		var rerr *ReadError
		if bodyErr != nil && !errors.As(bodyErr, &rerr) {
			return s.Written(), bodyErr
		}
	} else if err := s.WriteErrorBody(resp.Text); err != nil {
		return s.Written(), err
	}

	if err := s.Finish(); err != nil {
		return s.Written(), err
	}
	return s.Written(), bodyErr
}
