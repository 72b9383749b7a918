package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/link-weaver/internal/storage"
)

// Tracker holds and manages run statistics; it is safe for concurrent phases
type Tracker struct {
	mu   sync.Mutex
	data storage.RunStats
}

// NewTracker creates a new run tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: storage.RunStats{
			StartTime:        time.Now(),
			PhaseDurationsMs: make(map[string]int64),
		},
	}
}

// StartPhase starts timing a named phase and returns the function that stops it
func (t *Tracker) StartPhase(name string) func() {
	start := time.Now()
	return func() {
		t.RecordPhase(name, time.Since(start))
	}
}

// RecordPhase adds a phase duration; repeated phases accumulate
func (t *Tracker) RecordPhase(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PhaseDurationsMs[name] += d.Milliseconds()
}

// IncrementPagesFetched increments the successful fetch counter
func (t *Tracker) IncrementPagesFetched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFetched++
}

// IncrementPagesFailed increments the failed fetch counter
func (t *Tracker) IncrementPagesFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFailed++
}

// RecordInput records how many page records were handed to the builder
func (t *Tracker) RecordInput(records int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.RecordsRead = records
}

// RecordGraph records the size of the built graph
func (t *Tracker) RecordGraph(pages, links, external int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesIndexed = pages
	t.data.LinksRecorded = links
	t.data.ExternalLinks = external
}

// RecordAuthority records the authority iteration outcome
func (t *Tracker) RecordAuthority(iterations int, converged bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.AuthorityIterations = iterations
	t.data.AuthorityConverged = converged
}

// RecordSimilarity records evaluated candidate pairs and retained pairs
func (t *Tracker) RecordSimilarity(candidates, retained int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.SimilarityCandidates = candidates
	t.data.SimilarityPairs = retained
}

// RecordResults records the final opportunity and diagnostic counts
func (t *Tracker) RecordResults(opportunities, diagnostics int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Opportunities = opportunities
	t.data.Diagnostics = diagnostics
}

// GetSnapshot returns a copy of current statistics
func (t *Tracker) GetSnapshot() storage.RunStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.PhaseDurationsMs = make(map[string]int64, len(t.data.PhaseDurationsMs))
	for k, v := range t.data.PhaseDurationsMs {
		snapshot.PhaseDurationsMs[k] = v
	}
	return snapshot
}

// WriteToFile exports statistics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.mu.Unlock()

	jsonData, err := json.MarshalIndent(t.GetSnapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress summarizes current statistics on one line
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Pages: %d indexed from %d records | Links: %d internal, %d external | Pairs: %d of %d candidates | Opportunities: %d | Diagnostics: %d",
		t.data.PagesIndexed,
		t.data.RecordsRead,
		t.data.LinksRecorded,
		t.data.ExternalLinks,
		t.data.SimilarityPairs,
		t.data.SimilarityCandidates,
		t.data.Opportunities,
		t.data.Diagnostics,
	)
}
