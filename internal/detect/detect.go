// CLAUDE:SUMMARY Seen-key set and diffing that reports list items not seen before in this process.
// Package detect finds items not seen before in this process.
package detect

import (
	"sync"

	"github.com/hazyhaar/authwatch/internal/listing"
)

// SeenSet is the set of identity keys observed so far. It only grows.
type SeenSet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewSeenSet returns an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{keys: map[string]struct{}{}}
}

// Add inserts key and reports whether it was absent.
func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Has reports whether key was seen.
func (s *SeenSet) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of keys seen.
func (s *SeenSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Diff returns the items of batch whose key is not in seen, in batch order,
// and adds their keys. Items without a key are ignored. A key repeated
// within batch is reported once.
func Diff(batch []listing.Item, seen *SeenSet) []listing.Item {
	fresh := []listing.Item{}
	for _, it := range batch {
		if !it.HasKey() {
			continue
		}
		if seen.Add(it.Key) {
			fresh = append(fresh, it)
		}
	}
	return fresh
}

// Result is one observation.
type Result struct {
	New []listing.Item
	// Initial is set on the observation that first produced new items; the
	// presenter prints those as the initial scan.
	Initial bool
	Seen    int
}

// Detector tracks the first-run flag around a SeenSet.
type Detector struct {
	seen   *SeenSet
	primed bool
}

// NewDetector creates a Detector with an empty SeenSet.
func NewDetector() *Detector {
	return &Detector{seen: NewSeenSet()}
}

// Observe diffs batch. The first run ends with the first non-empty
// result, so an empty page at startup does not consume it.
func (d *Detector) Observe(batch []listing.Item) Result {
	fresh := Diff(batch, d.seen)
	res := Result{New: fresh, Seen: d.seen.Len()}
	if !d.primed && len(fresh) > 0 {
		res.Initial = true
		d.primed = true
	}
	return res
}

// Primed reports whether the initial scan has been reported.
func (d *Detector) Primed() bool { return d.primed }

// Seen exposes the underlying set.
func (d *Detector) Seen() *SeenSet { return d.seen }
