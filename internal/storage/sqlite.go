package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alvmarrod/link-weaver/internal/report"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL,
		version TEXT,
		page_count INTEGER NOT NULL,
		link_count INTEGER NOT NULL,
		opportunity_count INTEGER NOT NULL,
		converged BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS page_metrics (
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		importance TEXT,
		depth INTEGER NOT NULL,
		inbound INTEGER NOT NULL,
		outbound INTEGER NOT NULL,
		authority REAL NOT NULL,
		orphan BOOLEAN NOT NULL,
		gap_status TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
		UNIQUE(run_id, url)
	);

	CREATE TABLE IF NOT EXISTS opportunities (
		run_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		source_url TEXT NOT NULL,
		target_url TEXT NOT NULL,
		anchor TEXT NOT NULL,
		score REAL NOT NULL,
		similarity REAL NOT NULL,
		target_authority REAL NOT NULL,
		rationale TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
		UNIQUE(run_id, source_url, target_url)
	);

	CREATE TABLE IF NOT EXISTS diagnostics (
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		subject TEXT,
		message TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_snapshot ON runs(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_page_metrics_run ON page_metrics(run_id);
	CREATE INDEX IF NOT EXISTS idx_opportunities_run ON opportunities(run_id, rank);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveReport persists a report in one transaction and returns its run ID.
// A report without a run ID gets a fresh one.
func (s *Storage) SaveReport(r *report.Report) (string, error) {
	runID := r.Meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	createdAt := r.Meta.GeneratedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, snapshot_id, version, page_count, link_count, opportunity_count, converged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, r.Summary.SnapshotID, r.Meta.Version, r.Summary.PageCount, r.Summary.InternalLinkCount,
		r.Summary.OpportunityCount, r.Summary.AuthorityConverged, createdAt.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	pageStmt, err := tx.Prepare(`
		INSERT INTO page_metrics (run_id, url, importance, depth, inbound, outbound, authority, orphan, gap_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	for _, p := range r.Pages {
		if _, err := pageStmt.Exec(runID, p.URL, p.Importance, p.Depth, p.Inbound, p.Outbound, p.Authority, p.Orphan, p.GapStatus); err != nil {
			return "", fmt.Errorf("failed to insert page metrics for %s: %w", p.URL, err)
		}
	}

	oppStmt, err := tx.Prepare(`
		INSERT INTO opportunities (run_id, rank, source_url, target_url, anchor, score, similarity, target_authority, rationale)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare opportunity insert: %w", err)
	}
	defer oppStmt.Close()

	for i, o := range r.Opportunities {
		if _, err := oppStmt.Exec(runID, i+1, o.Source, o.Target, o.Anchor, o.Score, o.Similarity, o.TargetAuthority, strings.Join(o.Tags, "; ")); err != nil {
			return "", fmt.Errorf("failed to insert opportunity %s -> %s: %w", o.Source, o.Target, err)
		}
	}

	for _, d := range r.Diagnostics {
		if _, err := tx.Exec("INSERT INTO diagnostics (run_id, kind, subject, message) VALUES (?, ?, ?, ?)",
			runID, string(d.Kind), d.Subject, d.Message); err != nil {
			return "", fmt.Errorf("failed to insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit report: %w", err)
	}
	return runID, nil
}

// GetRun retrieves a run by ID, returns nil if not found
func (s *Storage) GetRun(runID string) (*Run, error) {
	var run Run
	err := s.db.QueryRow(`
		SELECT run_id, snapshot_id, version, page_count, link_count, opportunity_count, converged, created_at
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.SnapshotID, &run.Version, &run.PageCount, &run.LinkCount,
		&run.OpportunityCount, &run.Converged, &run.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// ListRuns returns all runs, newest first
func (s *Storage) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, snapshot_id, version, page_count, link_count, opportunity_count, converged, created_at
		FROM runs
		ORDER BY created_at DESC, run_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.RunID, &run.SnapshotID, &run.Version, &run.PageCount, &run.LinkCount,
			&run.OpportunityCount, &run.Converged, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// GetOpportunities returns the opportunities of a run in report order
func (s *Storage) GetOpportunities(runID string) ([]OpportunityRow, error) {
	rows, err := s.db.Query(`
		SELECT rank, source_url, target_url, anchor, score, similarity, target_authority, rationale
		FROM opportunities
		WHERE run_id = ?
		ORDER BY rank ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load opportunities: %w", err)
	}
	defer rows.Close()

	var opps []OpportunityRow
	for rows.Next() {
		var o OpportunityRow
		if err := rows.Scan(&o.Rank, &o.SourceURL, &o.TargetURL, &o.Anchor, &o.Score, &o.Similarity,
			&o.TargetAuthority, &o.Rationale); err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opps = append(opps, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunities: %w", err)
	}

	return opps, nil
}

// GetPageMetrics returns the page audit of a run ordered by URL
func (s *Storage) GetPageMetrics(runID string) ([]PageMetricRow, error) {
	rows, err := s.db.Query(`
		SELECT url, importance, depth, inbound, outbound, authority, orphan, gap_status
		FROM page_metrics
		WHERE run_id = ?
		ORDER BY url ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load page metrics: %w", err)
	}
	defer rows.Close()

	var pages []PageMetricRow
	for rows.Next() {
		var p PageMetricRow
		if err := rows.Scan(&p.URL, &p.Importance, &p.Depth, &p.Inbound, &p.Outbound, &p.Authority,
			&p.Orphan, &p.GapStatus); err != nil {
			return nil, fmt.Errorf("failed to scan page metrics: %w", err)
		}
		pages = append(pages, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating page metrics: %w", err)
	}

	return pages, nil
}

// CountDiagnostics returns the number of diagnostics stored for a run, by kind
func (s *Storage) CountDiagnostics(runID string) (map[string]int, error) {
	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM diagnostics WHERE run_id = ? GROUP BY kind", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count diagnostics: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic count: %w", err)
		}
		counts[kind] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diagnostics: %w", err)
	}

	return counts, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
