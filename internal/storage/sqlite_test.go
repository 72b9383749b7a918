package storage

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/alvmarrod/link-weaver/internal/diagnostic"
	"github.com/alvmarrod/link-weaver/internal/graphmetrics"
	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/alvmarrod/link-weaver/internal/opportunity"
	"github.com/alvmarrod/link-weaver/internal/report"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "linkweaver.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(t *testing.T) *report.Report {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	records := []linkgraph.PageRecord{
		{URL: "https://site.test/", Title: "Home", EntryPoint: true, Links: []linkgraph.LinkRecord{{Target: "/a", Anchor: "alpha"}}},
		{URL: "https://site.test/a", Title: "Alpha", Importance: "A"},
		{URL: "https://site.test/b", Title: "Beta"},
	}
	g, err := linkgraph.NewBuilder(log, nil).Build(records)
	require.NoError(t, err)
	m := graphmetrics.NewEngine(graphmetrics.DefaultConfig(), log, nil).Compute(g)

	opps := []opportunity.Opportunity{
		{Source: "https://site.test/a", Target: "https://site.test/b", Anchor: "beta", Score: 0.8, Similarity: 0.7,
			TargetAuthority: 0.2, Tags: []string{opportunity.TagHighSimilarity, opportunity.TagOrphanTarget}},
		{Source: "https://site.test/b", Target: "https://site.test/a", Anchor: "alpha", Score: 0.6, Similarity: 0.7,
			TargetAuthority: 0.4, Tags: []string{opportunity.TagHighSimilarity}},
	}
	diags := []diagnostic.Entry{
		{Kind: diagnostic.KindIngestion, Subject: "bad", Message: "record 3 (bad): invalid url"},
		{Kind: diagnostic.KindGraphIntegrity, Subject: "https://site.test/a", Message: "self-loop dropped"},
	}

	r := report.Generate(g, m, opps, diags, report.DefaultOptions())
	r.Meta = report.Meta{RunID: "run-1", GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), Version: "test"}
	return r
}

func TestSaveAndLoadReport(t *testing.T) {
	s := newTestStorage(t)
	r := sampleReport(t)

	runID, err := s.SaveReport(r)
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)

	run, err := s.GetRun(runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, r.Summary.SnapshotID, run.SnapshotID)
	assert.Equal(t, 3, run.PageCount)
	assert.Equal(t, 1, run.LinkCount)
	assert.Equal(t, 2, run.OpportunityCount)
	assert.Equal(t, "test", run.Version)
	assert.True(t, run.CreatedAt.Equal(r.Meta.GeneratedAt))

	opps, err := s.GetOpportunities(runID)
	require.NoError(t, err)
	require.Len(t, opps, 2)
	assert.Equal(t, 1, opps[0].Rank)
	assert.Equal(t, "https://site.test/a", opps[0].SourceURL)
	assert.Equal(t, "high similarity; orphan target", opps[0].Rationale)
	assert.Equal(t, 2, opps[1].Rank)

	pages, err := s.GetPageMetrics(runID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "https://site.test", pages[0].URL)
	assert.Equal(t, "A", pages[1].Importance)
	assert.True(t, pages[2].Orphan)
	assert.Equal(t, report.GapOrphan, pages[2].GapStatus)

	counts, err := s.CountDiagnostics(runID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ingestion_error": 1, "graph_integrity_warning": 1}, counts)
}

func TestSaveReportAssignsRunID(t *testing.T) {
	s := newTestStorage(t)
	r := sampleReport(t)
	r.Meta.RunID = ""

	runID, err := s.SaveReport(r)
	require.NoError(t, err)
	assert.Len(t, runID, 36)

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)
}

func TestDuplicateRunIsRejected(t *testing.T) {
	s := newTestStorage(t)
	r := sampleReport(t)

	_, err := s.SaveReport(r)
	require.NoError(t, err)
	_, err = s.SaveReport(r)
	assert.ErrorContains(t, err, "failed to insert run")

	// The failed transaction left nothing behind
	opps, err := s.GetOpportunities("run-1")
	require.NoError(t, err)
	assert.Len(t, opps, 2)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStorage(t)

	older := sampleReport(t)
	older.Meta.RunID = "older"
	older.Meta.GeneratedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := sampleReport(t)
	newer.Meta.RunID = "newer"
	newer.Meta.GeneratedAt = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	for _, r := range []*report.Report{older, newer} {
		_, err := s.SaveReport(r)
		require.NoError(t, err)
	}

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].RunID)
	assert.Equal(t, "older", runs[1].RunID)
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStorage(t)
	run, err := s.GetRun("missing")
	require.NoError(t, err)
	assert.Nil(t, run)
}
