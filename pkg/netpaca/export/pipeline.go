// Package export moves collected metrics from a device to the configured
// backend. A Pipeline pairs an Encoder (wire format) with a Transport
// (delivery) and owns the retry policy. Export never fails to its caller:
// undeliverable batches are logged and dropped.
package export

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"github.com/vpbank/netpaca/models"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
	"github.com/vpbank/netpaca/pkg/netpaca/telemetry"
	nphttp "github.com/vpbank/netpaca/transport/http"
)

// ─────────────────────────────────────────────────────────────────────────────
// Interfaces
// ─────────────────────────────────────────────────────────────────────────────

// Encoder renders one device's metrics into a request body.
type Encoder interface {
	Encode(deviceTags map[string]string, metrics []models.Metric) ([]byte, error)
	ContentType() string
}

// Transport delivers an encoded body.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// ─────────────────────────────────────────────────────────────────────────────
// Retry policy
// ─────────────────────────────────────────────────────────────────────────────

// RetryPolicy bounds the delivery retry loop. The wait between attempts
// grows by Factor from MinBackoff up to MaxBackoff.
type RetryPolicy struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Factor     float64

	// MaxAttempts counts the first attempt. Zero retries without bound.
	MaxAttempts int

	// Retryable classifies a delivery error. Default: transport/http.IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy waits 4s, 8s, 10s, 10s between five attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MinBackoff:  4 * time.Second,
		MaxBackoff:  10 * time.Second,
		Factor:      2,
		MaxAttempts: 5,
		Retryable:   nphttp.IsRetryable,
	}
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if r.MinBackoff <= 0 {
		r.MinBackoff = d.MinBackoff
	}
	if r.MaxBackoff < r.MinBackoff {
		r.MaxBackoff = max(d.MaxBackoff, r.MinBackoff)
	}
	if r.Factor <= 1 {
		r.Factor = d.Factor
	}
	if r.MaxAttempts < 0 {
		r.MaxAttempts = d.MaxAttempts
	}
	if r.Retryable == nil {
		r.Retryable = d.Retryable
	}
	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline
// ─────────────────────────────────────────────────────────────────────────────

// Pipeline is the active exporter. It is safe for concurrent use; every
// Export call retries on its own.
type Pipeline struct {
	name      string
	enc       Encoder
	tr        Transport
	retry     RetryPolicy
	telemetry *telemetry.Metrics
	logger    *slog.Logger
}

// NewPipeline builds a Pipeline named after its exporter entry.
func NewPipeline(name string, enc Encoder, tr Transport, retry RetryPolicy, tel *telemetry.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Pipeline{
		name:      name,
		enc:       enc,
		tr:        tr,
		retry:     retry.withDefaults(),
		telemetry: tel,
		logger:    logger,
	}
}

// Name returns the exporter name.
func (p *Pipeline) Name() string { return p.name }

// Export encodes and delivers metrics for dev. It returns once the batch is
// delivered, dropped or ctx is done.
func (p *Pipeline) Export(ctx context.Context, dev *device.Device, metrics []models.Metric) {
	if len(metrics) == 0 {
		return
	}
	log := p.logger.With("exporter", p.name, "device", dev.Name)

	body, err := p.enc.Encode(dev.Tags, metrics)
	if err != nil {
		p.telemetry.ExportDone(p.name, telemetry.ResultDropped, len(metrics))
		log.Error("export: encode failed, batch dropped", "metrics", len(metrics), "error", err.Error())
		return
	}
	log.Debug("export: sending", "metrics", len(metrics), "bytes", len(body))

	if err := p.deliver(ctx, body, log); err != nil {
		p.telemetry.ExportDone(p.name, telemetry.ResultDropped, len(metrics))
		if ctx.Err() != nil {
			return
		}
		log.Error("export: delivery failed, batch dropped", "metrics", len(metrics), "error", err.Error())
		return
	}
	p.telemetry.ExportDone(p.name, telemetry.ResultOK, len(metrics))
}

// deliver sends body until it succeeds, fails permanently or the attempt
// budget runs out.
func (p *Pipeline) deliver(ctx context.Context, body []byte, log *slog.Logger) error {
	b := &backoff.Backoff{
		Min:    p.retry.MinBackoff,
		Max:    p.retry.MaxBackoff,
		Factor: p.retry.Factor,
	}
	for attempt := 1; ; attempt++ {
		p.telemetry.ExportAttempt(p.name)
		err := p.tr.Send(ctx, body)
		if err == nil {
			return nil
		}
		if !p.retry.Retryable(err) {
			return err
		}
		if p.retry.MaxAttempts > 0 && attempt >= p.retry.MaxAttempts {
			return errors.Join(ErrAttemptsExhausted, err)
		}

		wait := b.Duration()
		log.Warn("export: delivery failed, retrying",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error(),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ErrAttemptsExhausted marks a batch dropped after MaxAttempts retryable failures.
var ErrAttemptsExhausted = errors.New("export: retry attempts exhausted")

// Close releases the transport.
func (p *Pipeline) Close() error { return p.tr.Close() }

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
