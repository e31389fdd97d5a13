package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const DefaultQueueSize = 1024

var (
	ErrClosed      = errors.New("pool: submit on stopped pool")
	ErrInvalidSize = errors.New("pool: worker count must be positive")
)

// a deferred unit of work; a returned error is logged by the worker
type Job func() error

// Pool runs jobs on a fixed set of long-lived workers fed by one FIFO queue.
// Submit blocks only while the queue is full. A job that panics is recovered
// and logged, and its worker moves on to the next job.
type Pool struct {
	name   string
	size   int
	jobs   chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	logger *slog.Logger
	attrs  metric.MeasurementOption
	queued metric.Int64UpDownCounter
	panics metric.Int64Counter
}

type Option func(*options)

type options struct {
	queueSize int
	logger    *slog.Logger
	meter     metric.Meter
}

// capacity of the pending-job queue
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// starts size workers that live until Stop
func New(name string, size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	o := options{
		queueSize: DefaultQueueSize,
		logger:    slog.Default(),
		meter:     otel.Meter("github.com/ColeHoward/filedrop/internal/pool"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.queueSize < 0 {
		o.queueSize = 0
	}

	queued, err := o.meter.Int64UpDownCounter("filedrop.pool.queued",
		metric.WithDescription("Jobs submitted but not yet claimed by a worker"),
		metric.WithUnit("{job}"))
	if err != nil {
		return nil, err
	}
	panics, err := o.meter.Int64Counter("filedrop.pool.panics",
		metric.WithDescription("Jobs that panicked and were recovered"),
		metric.WithUnit("{job}"))
	if err != nil {
		return nil, err
	}

	p := &Pool{
		name:   name,
		size:   size,
		jobs:   make(chan Job, o.queueSize),
		logger: o.logger.With("pool", name),
		attrs:  metric.WithAttributes(attribute.String("pool", name)),
		queued: queued,
		panics: panics,
	}

	for i := range size {
		p.wg.Add(1)
		go p.worker(i)
	}

	return p, nil
}

func (p *Pool) Size() int {
	return p.size
}

// enqueues job for one of the workers
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	p.queued.Add(context.Background(), 1, p.attrs)
	p.jobs <- job
	return nil
}

// stops accepting jobs, lets the workers drain the queue, and waits for them
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.queued.Add(context.Background(), -1, p.attrs)
		p.execute(workerID, job)
	}
}

func (p *Pool) execute(workerID int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(context.Background(), 1, p.attrs)
			p.logger.Error("job panicked",
				"worker", workerID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	if err := job(); err != nil {
		p.logger.Warn("job failed", "worker", workerID, "error", err)
	}
}
