// Package snapshot periodically exports the session table as JSONL to
// external destinations for offline inspection.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/crossing/internal/clock"
)

// Destination is a snapshot target (S3, git, etc.).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Exporter writes a snapshot to every destination on a fixed interval.
type Exporter struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	clock        clock.Clock
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExporter creates an exporter reading from source.
func NewExporter(source Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Exporter {
	return &Exporter{
		source:       source,
		destinations: destinations,
		interval:     interval,
		clock:        clock.Real(),
		logger:       logger,
	}
}

// Start exports once immediately, then on each tick.
func (e *Exporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()
}

// Stop cancels the exporter and waits for an in-flight export to finish.
func (e *Exporter) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Exporter) run(ctx context.Context) {
	e.ExportOnce(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ExportOnce(ctx)
		}
	}
}

// ExportOnce writes one snapshot to every destination. Destination failures
// are logged and do not stop the others.
func (e *Exporter) ExportOnce(ctx context.Context) {
	var buf bytes.Buffer
	if err := ExportJSONL(e.source, e.clock.Now(), &buf); err != nil {
		e.logger.Error("snapshot export failed", "err", err)
		return
	}
	data := buf.Bytes()

	failed := 0
	for i, dest := range e.destinations {
		if err := dest.Write(ctx, data); err != nil {
			failed++
			e.logger.Error("snapshot destination write failed", "destination", fmt.Sprintf("%d", i), "err", err)
		}
	}

	e.logger.Debug("snapshot written", "destinations", len(e.destinations), "failed", failed, "bytes", len(data))
}
