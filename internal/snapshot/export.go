package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/crossing/internal/model"
)

// Source supplies the sessions to export, sorted by ID.
type Source interface {
	Snapshot() []*model.Session
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	SessionCount  int       `json:"session_count"`
	ReservedCount int       `json:"reserved_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes a header line followed by one line per session.
// Safety tubes are not exported.
func ExportJSONL(src Source, now time.Time, w io.Writer) error {
	sessions := src.Snapshot()
	reserved := 0
	for _, s := range sessions {
		if s.Reserved {
			reserved++
		}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     now.UTC(),
		SessionCount:  len(sessions),
		ReservedCount: reserved,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, s := range sessions {
		if err := enc.Encode(record{Type: "session", Data: s}); err != nil {
			return fmt.Errorf("encode session %s: %w", s.ID, err)
		}
	}
	return nil
}
