package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ColeHoward/filedrop/internal/socket"
	"github.com/ColeHoward/filedrop/internal/types"
	"github.com/ColeHoward/filedrop/internal/wire"
)

const (
	readBufferSize = 4096
	// how long a closed connection waits for the peer to finish sending
	lingerTimeout = 250 * time.Millisecond
	lingerLimit   = 64 * 1024
)

// ServeConn answers exactly one request on conn using root, then closes it.
// The returned error reports a failure to write the response.
func (s *Server) ServeConn(conn net.Conn, root string, family string) error {
	start := time.Now()
	remote := addrString(conn.RemoteAddr())

	id := s.nextID.Add(1)
	s.conns.Store(id, conn.RemoteAddr())
	defer s.conns.Delete(id)
	defer s.closeConn(conn, remote)

	ctx, span := s.tracer.Start(context.Background(), "serve_conn",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("net.family", family),
			attribute.String("net.peer.addr", remote),
		))
	defer span.End()

	s.metrics.connection(ctx, family)
	s.logger.InfoContext(ctx, "handle_connection", "remote", remote)

	if err := socket.SetClientOptions(conn); err != nil {
		s.logger.DebugContext(ctx, "failed to set client options", "remote", remote, "error", err)
	}

	resp := s.prepare(ctx, conn, root, span)
	defer resp.File.Close()

	n, err := wire.WriteResponse(conn, resp)

	reason, _ := wire.StatusText(resp.Status)
	span.SetAttributes(
		attribute.Int("http.status_code", resp.Status),
		attribute.Int64("http.response.body.size", n),
	)
	if resp.Status != 200 {
		span.SetStatus(codes.Error, resp.Text)
	}
	s.metrics.response(ctx, resp.Status, n, time.Since(start))
	s.logger.InfoContext(ctx, "response",
		"remote", remote,
		"status", resp.Status,
		"reason", reason,
		"bytes", n)

	var rerr *wire.ReadError
	if errors.As(err, &rerr) {
		// the peer already got a terminated response
		s.logger.WarnContext(ctx, "body truncated", "remote", remote, "error", rerr.Err)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("write response to %s: %w", remote, err)
	}
	return nil
}

// reads, parses and resolves the request, turning any failure into the
// matching error response
func (s *Server) prepare(ctx context.Context, conn net.Conn, root string, span trace.Span) wire.Response {
	if s.cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			s.logger.DebugContext(ctx, "failed to set read deadline", "error", err)
		}
	}

	head, err := wire.ReadHead(bufio.NewReaderSize(conn, readBufferSize), s.cfg.HeaderLimit)
	if err != nil && !errors.Is(err, types.ErrHeaderTooLarge) {
		// parse whatever arrived before the failure
		s.logger.DebugContext(ctx, "request read error", "error", err)
		err = nil
	}

	var (
		req  types.Request
		file *types.ResolvedFile
	)
	if err == nil {
		req, err = wire.Parse(head)
	}
	if err == nil {
		span.SetAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		)
		file, err = s.resolver.Resolve(req, root)
	}
	if err != nil {
		status, token := types.StatusOf(err)
		return wire.Response{Status: status, Text: token}
	}

	return wire.Response{Status: 200, File: file, Chunked: req.WantsChunked()}
}

// half-closes conn and drains unread request bytes before closing
func (s *Server) closeConn(conn net.Conn, remote string) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if cw.CloseWrite() == nil {
			if err := conn.SetReadDeadline(time.Now().Add(lingerTimeout)); err != nil {
				s.logger.Debug("failed to set linger deadline", "remote", remote, "error", err)
			} else {
				io.Copy(io.Discard, io.LimitReader(conn, lingerLimit))
			}
		}
	}
	conn.Close()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
