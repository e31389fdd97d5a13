package server

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	connections metric.Int64Counter
	responses   metric.Int64Counter
	bytes       metric.Int64Counter
	duration    metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m   metrics
		err error
	)

	m.connections, err = meter.Int64Counter("filedrop.connections",
		metric.WithDescription("Accepted connections handed to a worker"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, err
	}

	m.responses, err = meter.Int64Counter("filedrop.responses",
		metric.WithDescription("Responses written, by status code"),
		metric.WithUnit("{response}"))
	if err != nil {
		return nil, err
	}

	m.bytes, err = meter.Int64Counter("filedrop.response.bytes",
		metric.WithDescription("Response body bytes written"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram("filedrop.connection.duration",
		metric.WithDescription("Time from dispatch to close of a connection"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *metrics) connection(ctx context.Context, family string) {
	m.connections.Add(ctx, 1, metric.WithAttributes(attribute.String("net.family", family)))
}

func (m *metrics) response(ctx context.Context, status int, n int64, d time.Duration) {
	attrs := metric.WithAttributes(attribute.Int("http.status_code", status))
	m.responses.Add(ctx, 1, attrs)
	m.bytes.Add(ctx, n, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}
