package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ColeHoward/filedrop/internal/api"
	"github.com/ColeHoward/filedrop/internal/config"
	"github.com/ColeHoward/filedrop/internal/pool"
	"github.com/ColeHoward/filedrop/internal/socket"
	"github.com/ColeHoward/filedrop/internal/types"
)

const (
	instrumentationName = "github.com/ColeHoward/filedrop/internal/server"
	acceptBackoff       = 10 * time.Millisecond
)

var ErrNotListening = errors.New("server: Serve called before Listen")

// Server binds one listener per configured host. Each listener feeds its own
// worker pool, and a worker serves one connection from request to close.
type Server struct {
	cfg      config.Config
	resolver types.Resolver
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	metrics  *metrics

	// in-flight connections by id
	conns  *xsync.MapOf[uint64, net.Addr]
	nextID atomic.Uint64

	mu        sync.Mutex
	listeners []*listener
}

type listener struct {
	host   string
	family string
	ln     net.Listener
	pool   *pool.Pool
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// replaces the default GET /download/<rel> router
func WithResolver(r types.Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Server) { s.meter = mp.Meter(instrumentationName) }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = tp.Tracer(instrumentationName) }
}

func New(cfg config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		resolver: api.NewDownloadRouter(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		conns:    xsync.NewMapOf[uint64, net.Addr](),
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := newMetrics(s.meter)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	s.metrics = m

	return s, nil
}

// binds every configured host and starts its worker pool. a failure to bind
// any of them closes the ones already bound and is returned.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, host := range s.cfg.Hosts {
		family, err := socket.Family(host)
		if err != nil {
			s.closeLocked()
			return err
		}

		ln, err := socket.Listen(host, s.cfg.Port)
		if err != nil {
			s.closeLocked()
			return err
		}

		p, err := pool.New(ln.Addr().String(), s.cfg.Workers,
			pool.WithQueueSize(s.cfg.QueueSize),
			pool.WithLogger(s.logger),
			pool.WithMeter(s.meter))
		if err != nil {
			ln.Close()
			s.closeLocked()
			return err
		}

		s.listeners = append(s.listeners, &listener{host: host, family: family, ln: ln, pool: p})
		s.logger.Info("listening", "addr", ln.Addr().String(), "family", family, "workers", s.cfg.Workers)
	}

	return nil
}

// bound addresses, in configuration order
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, l := range s.listeners {
		addrs = append(addrs, l.ln.Addr())
	}
	return addrs
}

// number of connections currently held by a worker
func (s *Server) ActiveConnections() int {
	return s.conns.Size()
}

// Serve runs one accept loop per listener and blocks until all of them end.
// Cancelling ctx closes the listeners; connections already queued are still
// served before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listeners := append([]*listener(nil), s.listeners...)
	s.mu.Unlock()

	if len(listeners) == 0 {
		return ErrNotListening
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// handle context cancellation
	go func() {
		<-ctx.Done()
		for _, l := range listeners {
			l.ln.Close()
		}
	}()

	errs := make([]error, len(listeners))
	var wg sync.WaitGroup
	for i, l := range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.acceptLoop(ctx, l)
		}()
	}
	wg.Wait()

	for _, l := range listeners {
		l.pool.Stop()
	}

	s.mu.Lock()
	s.listeners = nil
	s.mu.Unlock()

	s.logger.Info("server shutdown complete")
	return errors.Join(errs...)
}

func (s *Server) acceptLoop(ctx context.Context, l *listener) error {
	addr := l.ln.Addr().String()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener %s closed: %w", addr, err)
			}
			s.logger.Error("accept error", "addr", addr, "error", err)
			time.Sleep(acceptBackoff)
			continue
		}

		// each connection gets its own copy of the root
		root := s.cfg.Root
		family := l.family

		if err := l.pool.Submit(func() error {
			return s.ServeConn(conn, root, family)
		}); err != nil {
			s.logger.Error("dropping connection", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
		}
	}
}

func (s *Server) closeLocked() {
	for _, l := range s.listeners {
		l.ln.Close()
		l.pool.Stop()
	}
	s.listeners = nil
}

// Close releases listeners bound by Listen when Serve will not be called.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}
