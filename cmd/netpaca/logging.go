package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// buildLogger returns the process logger and a func that releases its output.
// A non-empty file sends output to a size-rotated log file.
func buildLogger(level, format, file string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	var (
		out     io.Writer = os.Stderr
		release           = func() {}
	)
	if file != "" {
		lj := &lumberjack.Logger{Filename: file, MaxSize: 100, MaxBackups: 5}
		out = lj
		release = func() { _ = lj.Close() }
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		release()
		return nil, nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}
	return slog.New(handler), release, nil
}
