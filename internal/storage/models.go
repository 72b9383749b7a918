package storage

import "time"

// Run is one persisted analysis run
type Run struct {
	RunID            string
	SnapshotID       string
	Version          string
	PageCount        int
	LinkCount        int
	OpportunityCount int
	Converged        bool
	CreatedAt        time.Time
}

// PageMetricRow is the persisted audit row of one page in a run
type PageMetricRow struct {
	URL        string
	Importance string
	Depth      int
	Inbound    int
	Outbound   int
	Authority  float64
	Orphan     bool
	GapStatus  string
}

// OpportunityRow is one persisted opportunity, ranked as in the report
type OpportunityRow struct {
	Rank            int
	SourceURL       string
	TargetURL       string
	Anchor          string
	Score           float64
	Similarity      float64
	TargetAuthority float64
	Rationale       string // tags joined by "; "
}

// RunStats tracks run statistics for export on exit
type RunStats struct {
	StartTime            time.Time        `json:"start_time"`
	EndTime              time.Time        `json:"end_time"`
	RecordsRead          int              `json:"records_read"`
	PagesFetched         int              `json:"pages_fetched"`
	PagesFailed          int              `json:"pages_failed"`
	PagesIndexed         int              `json:"pages_indexed"`
	LinksRecorded        int              `json:"links_recorded"`
	ExternalLinks        int              `json:"external_links"`
	SimilarityCandidates int              `json:"similarity_candidates"`
	SimilarityPairs      int              `json:"similarity_pairs"`
	AuthorityIterations  int              `json:"authority_iterations"`
	AuthorityConverged   bool             `json:"authority_converged"`
	Opportunities        int              `json:"opportunities"`
	Diagnostics          int              `json:"diagnostics"`
	PhaseDurationsMs     map[string]int64 `json:"phase_durations_ms"`
	TerminationReason    string           `json:"termination_reason"`
}
