// Package file implements the file sink transport: every exported batch is
// appended to a writer followed by a newline. When a path is configured the
// writer is a size-rotated file managed by lumberjack; otherwise it defaults
// to os.Stdout, which is handy when trying out a new collector.
package file

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config controls WriterTransport behaviour.
type Config struct {
	// Writer is the destination when Path is empty. nil defaults to os.Stdout.
	Writer io.Writer

	// Path, when set, selects a rotated file instead of Writer.
	Path string

	// MaxSizeMB is the size at which Path is rotated. Default 100.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept. Zero keeps all.
	MaxBackups int

	// MaxAgeDays removes rotated files older than this. Zero keeps all.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool

	// Newline appended after each message. Default "\n".
	Newline string
}

// ─────────────────────────────────────────────────────────────────────────────
// WriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// WriterTransport writes each message to an io.Writer followed by a newline.
// It is safe for concurrent use.
type WriterTransport struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer // non-nil only when this transport opened the writer
	nl     []byte
	logger *slog.Logger
}

// New constructs a WriterTransport. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *WriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	nl := cfg.Newline
	if nl == "" {
		nl = "\n"
	}
	t := &WriterTransport{nl: []byte(nl), logger: logger}

	switch {
	case cfg.Path != "":
		size := cfg.MaxSizeMB
		if size <= 0 {
			size = 100
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    size,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		t.w, t.closer = lj, lj
	case cfg.Writer != nil:
		t.w = cfg.Writer
	default:
		t.w = os.Stdout
	}
	return t
}

// Send writes data followed by the newline. Writes are serialised so
// concurrent exports never interleave.
func (t *WriterTransport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.w.Write(data); err != nil {
		t.logger.Error("transport/file: write failed", "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport/file: write: %w", err)
	}
	if _, err := t.w.Write(t.nl); err != nil {
		t.logger.Error("transport/file: newline write failed", "error", err.Error())
		return fmt.Errorf("transport/file: write newline: %w", err)
	}

	t.logger.Debug("transport/file: sent message", "bytes", len(data))
	return nil
}

// Close closes the rotated file if this transport opened it. A caller
// supplied Writer is left open.
func (t *WriterTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	return err
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
