package batch

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stats accumulates counters for a single scheduled run. A fresh Stats is
// created at the start of each run and passed to everything that performs
// I/O, so concurrent runs never contaminate each other's numbers.
type Stats struct {
	RunID     string
	StartedAt time.Time

	processed atomic.Int64
	updated   atomic.Int64
	unchanged atomic.Int64
	skipped   atomic.Int64
	errored   atomic.Int64

	storeReads  atomic.Int64
	storeWrites atomic.Int64
	pushSends   atomic.Int64
	emailSends  atomic.Int64
}

// NewStats starts tracking a run.
func NewStats() *Stats {
	return &Stats{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

func (s *Stats) IncProcessed() { s.processed.Add(1) }
func (s *Stats) IncUpdated()   { s.updated.Add(1) }
func (s *Stats) IncUnchanged() { s.unchanged.Add(1) }
func (s *Stats) IncSkipped()   { s.skipped.Add(1) }
func (s *Stats) IncErrored()   { s.errored.Add(1) }

func (s *Stats) AddStoreReads(n int)  { s.storeReads.Add(int64(n)) }
func (s *Stats) AddStoreWrites(n int) { s.storeWrites.Add(int64(n)) }
func (s *Stats) IncPushSends()        { s.pushSends.Add(1) }
func (s *Stats) IncEmailSends()       { s.emailSends.Add(1) }

func (s *Stats) Processed() int64 { return s.processed.Load() }
func (s *Stats) Updated() int64   { return s.updated.Load() }
func (s *Stats) Unchanged() int64 { return s.unchanged.Load() }
func (s *Stats) Skipped() int64   { return s.skipped.Load() }
func (s *Stats) Errored() int64   { return s.errored.Load() }

// Duration returns the elapsed wall-clock time since the run started.
func (s *Stats) Duration() time.Duration {
	return time.Since(s.StartedAt)
}

// Summary is the JSON-friendly snapshot of a finished run.
type Summary struct {
	RunID      string `json:"run_id"`
	Processed  int64  `json:"processed"`
	Updated    int64  `json:"updated"`
	Unchanged  int64  `json:"unchanged"`
	Skipped    int64  `json:"skipped"`
	Errored    int64  `json:"errored"`
	DurationMS int64  `json:"duration_ms"`
}

// Summarize snapshots the counters.
func (s *Stats) Summarize() Summary {
	return Summary{
		RunID:      s.RunID,
		Processed:  s.processed.Load(),
		Updated:    s.updated.Load(),
		Unchanged:  s.unchanged.Load(),
		Skipped:    s.skipped.Load(),
		Errored:    s.errored.Load(),
		DurationMS: s.Duration().Milliseconds(),
	}
}

// MarshalZerologObject lets a run summary be logged as one structured event.
func (s *Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Str("run_id", s.RunID).
		Int64("processed", s.processed.Load()).
		Int64("updated", s.updated.Load()).
		Int64("unchanged", s.unchanged.Load()).
		Int64("skipped", s.skipped.Load()).
		Int64("errored", s.errored.Load()).
		Int64("store_reads", s.storeReads.Load()).
		Int64("store_writes", s.storeWrites.Load()).
		Int64("push_sends", s.pushSends.Load()).
		Int64("email_sends", s.emailSends.Load()).
		Dur("duration", s.Duration())
}
