package window

import (
	"sync"
	"time"
)

// Sample is a single (timestamp, value) observation. Immutable once created.
type Sample struct {
	At    time.Time
	Value float64
}

type key struct {
	source string
	symbol string
}

// Store keeps per-(source, symbol) sliding buffers of samples, pruned to a
// fixed retention on every append. It owns the buffers exclusively; callers
// only ever see copies.
type Store struct {
	retention time.Duration

	mu      sync.Mutex
	buffers map[key][]Sample
}

// NewStore constructs a store with the given retention window.
func NewStore(retention time.Duration) *Store {
	return &Store{
		retention: retention,
		buffers:   make(map[key][]Sample),
	}
}

// Record appends a sample for (source, symbol) and prunes everything older
// than at minus the retention. Unknown symbols are created lazily.
func (s *Store) Record(source, symbol string, value float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{source: source, symbol: symbol}
	buf := append(s.buffers[k], Sample{At: at, Value: value})

	cutoff := at.Add(-s.retention)
	start := 0
	for start < len(buf) && buf[start].At.Before(cutoff) {
		start++
	}
	if start > 0 {
		buf = append(buf[:0], buf[start:]...)
	}

	s.buffers[k] = buf
}

// Snapshot returns the buffered values for (source, symbol) in ascending time
// order, or nil if the pair has never been recorded.
func (s *Store) Snapshot(source, symbol string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[key{source: source, symbol: symbol}]
	if len(buf) == 0 {
		return nil
	}

	values := make([]float64, len(buf))
	for i, sample := range buf {
		values[i] = sample.Value
	}
	return values
}

// SnapshotSamples returns a copy of the buffered samples for (source, symbol)
// in ascending time order.
func (s *Store) SnapshotSamples(source, symbol string) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[key{source: source, symbol: symbol}]
	if len(buf) == 0 {
		return nil
	}

	out := make([]Sample, len(buf))
	copy(out, buf)
	return out
}

// Reset clears the buffer for (source, symbol). Used after an event fires so
// the same excursion does not re-trigger before it decays.
func (s *Store) Reset(source, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, key{source: source, symbol: symbol})
}

// Symbols returns the distinct symbols currently tracked for a source.
func (s *Store) Symbols(source string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var symbols []string
	for k := range s.buffers {
		if k.source == source {
			symbols = append(symbols, k.symbol)
		}
	}
	return symbols
}
