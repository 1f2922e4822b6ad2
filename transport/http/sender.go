// Package http implements the HTTP transport used by the InfluxDB and
// Circonus exporters (every encoded batch is delivered with one request) and
// by the device API drivers, which read the reply with Call.
//
// A non-2xx response is returned as a *StatusError; IsRetryable tells the
// export pipeline whether another attempt makes sense.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config controls Sender behaviour.
type Config struct {
	// URL is the full request URL, e.g. "http://influx:8086/write?db=netpaca".
	URL string

	// Method defaults to POST.
	Method string

	// ContentType header value. Optional.
	ContentType string

	// Headers are added to every request.
	Headers map[string]string

	// Timeout bounds one request. Default 30s.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Username and Password enable HTTP basic auth when Username is set.
	Username string
	Password string

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// ─────────────────────────────────────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────────────────────────────────────

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// IsRetryable reports whether err is worth another attempt: 5xx responses,
// 429 and transport failures are; 4xx responses and context cancellation are
// not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Sender
// ─────────────────────────────────────────────────────────────────────────────

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 1024

// maxCallBody caps the reply read by Call.
const maxCallBody = 16 << 20

// Sender delivers batches over HTTP. It is safe for concurrent use.
type Sender struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New constructs a Sender. cfg.URL is required.
func New(cfg Config, logger *slog.Logger) (*Sender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transport/http: URL is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // opt-in for lab collectors
			},
		}
	}
	return &Sender{cfg: cfg, client: client, logger: logger}, nil
}

// Send issues one request carrying body and discards the reply.
func (s *Sender) Send(ctx context.Context, body []byte) error {
	_, err := s.do(ctx, body, false)
	return err
}

// Call issues one request carrying body and returns the body of a 2xx reply.
func (s *Sender) Call(ctx context.Context, body []byte) ([]byte, error) {
	return s.do(ctx, body, true)
}

func (s *Sender) do(ctx context.Context, body []byte, keep bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, s.cfg.Method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport/http: build request: %w", err)
	}
	if s.cfg.ContentType != "" {
		req.Header.Set("Content-Type", s.cfg.ContentType)
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport/http: %s %s: %w", s.cfg.Method, s.cfg.URL, err)
	}
	defer resp.Body.Close()

	s.logger.Debug("transport/http: response",
		"method", s.cfg.Method,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if !keep {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, nil
		}
		out, err := io.ReadAll(io.LimitReader(resp.Body, maxCallBody))
		if err != nil {
			return nil, fmt.Errorf("transport/http: read reply: %w", err)
		}
		return out, nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
}

// Close releases idle connections.
func (s *Sender) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
