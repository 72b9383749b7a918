package diagnostic

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrEmptyDataset is returned when ingestion leaves no valid pages. It aborts the run.
var ErrEmptyDataset = errors.New("no valid pages after ingestion")

// Kind classifies a non-fatal condition surfaced in the report
type Kind string

const (
	KindIngestion      Kind = "ingestion_error"
	KindGraphIntegrity Kind = "graph_integrity_warning"
	KindConvergence    Kind = "convergence_warning"
	KindOther          Kind = "warning"
)

// IngestionError describes a malformed record or link field
type IngestionError struct {
	Record int // zero-based index in the input collection
	URL    string
	Reason string
}

func (e *IngestionError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("record %d: %s", e.Record, e.Reason)
	}
	return fmt.Sprintf("record %d (%s): %s", e.Record, e.URL, e.Reason)
}

// GraphIntegrityWarning describes a duplicate page or a dropped self-loop
type GraphIntegrityWarning struct {
	URL    string
	Reason string
}

func (w *GraphIntegrityWarning) Error() string {
	return fmt.Sprintf("%s: %s", w.URL, w.Reason)
}

// ConvergenceWarning is raised when authority propagation hits its iteration cap
type ConvergenceWarning struct {
	Iterations int
	Delta      float64
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("authority did not converge after %d iterations (last delta %.3g)", w.Iterations, w.Delta)
}

// Entry is the serializable form of a non-fatal condition
type Entry struct {
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// Collector accumulates non-fatal conditions for one run.
// It is safe for concurrent use; a nil Collector discards everything.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Record classifies err by its concrete type and stores it
func (c *Collector) Record(err error) {
	if c == nil || err == nil {
		return
	}

	entry := Entry{Kind: KindOther, Message: err.Error()}

	var ingestErr *IngestionError
	var integrity *GraphIntegrityWarning
	var convergence *ConvergenceWarning
	switch {
	case errors.As(err, &ingestErr):
		entry.Kind = KindIngestion
		entry.Subject = ingestErr.URL
		entry.Message = ingestErr.Reason
	case errors.As(err, &integrity):
		entry.Kind = KindGraphIntegrity
		entry.Subject = integrity.URL
		entry.Message = integrity.Reason
	case errors.As(err, &convergence):
		entry.Kind = KindConvergence
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

// Len returns the number of recorded entries
func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns a sorted copy of everything recorded so far.
// Sorting makes the output independent of the order concurrent phases finished in.
func (c *Collector) Entries() []Entry {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	c.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		if entries[i].Subject != entries[j].Subject {
			return entries[i].Subject < entries[j].Subject
		}
		return entries[i].Message < entries[j].Message
	})
	return entries
}

// CountByKind returns how many entries of each kind were recorded
func (c *Collector) CountByKind() map[Kind]int {
	counts := make(map[Kind]int)
	for _, e := range c.Entries() {
		counts[e.Kind]++
	}
	return counts
}
