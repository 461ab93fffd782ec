package telemetry

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// TraceSink appends one newline-delimited JSON record per Write call (for
// rejection and signal decision traces), independent of the pretty-printed
// slog stream — it's the
// machine-readable record a post-mortem reads, not something a human tails.
type TraceSink struct {
	mu sync.Mutex
	f  *os.File
}

func NewTraceSink(path string) (*TraceSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &TraceSink{f: f}, nil
}

// Record is one rejection/signal trace line. Component and Kind are
// free-form (e.g. "signalproc"/"reject", "shard"/"signal") so callers don't
// need a shared enum just to log.
type Record struct {
	Time      time.Time      `json:"time"`
	Component string         `json:"component"`
	Kind      string         `json:"kind"`
	GameID    string         `json:"game_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func (t *TraceSink) Write(rec Record) {
	if t == nil || t.f == nil {
		return
	}
	rec.Time = time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	enc := json.NewEncoder(t.f)
	_ = enc.Encode(rec)
}

func (t *TraceSink) Close() error {
	if t == nil || t.f == nil {
		return nil
	}
	return t.f.Close()
}
