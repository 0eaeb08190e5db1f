package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// LineSource feeds a Receiver from JSON lines, one payload object per line.
type LineSource struct {
	receiver *Receiver
	logger   *slog.Logger
}

// NewLineSource creates a source delivering to receiver.
func NewLineSource(receiver *Receiver, logger *slog.Logger) *LineSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineSource{receiver: receiver, logger: logger.With("component", "line_source")}
}

// LineStats counts what a Run saw.
type LineStats struct {
	Delivered int
	Skipped   int
}

// Run reads r until EOF or ctx is done. Unparseable lines are skipped.
func (s *LineSource) Run(ctx context.Context, r io.Reader) (LineStats, error) {
	var stats LineStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		decoder := json.NewDecoder(bytes.NewReader(line))
		decoder.UseNumber()
		var payload map[string]any
		if err := decoder.Decode(&payload); err != nil {
			s.logger.Warn("Skipping unparseable line", "error", err)
			stats.Skipped++
			continue
		}

		if s.receiver.Deliver(ctx, payload) {
			stats.Delivered++
		} else {
			stats.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}
	return stats, nil
}
