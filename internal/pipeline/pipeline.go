package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/alvmarrod/link-weaver/internal/config"
	"github.com/alvmarrod/link-weaver/internal/diagnostic"
	"github.com/alvmarrod/link-weaver/internal/graphmetrics"
	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/opportunity"
	"github.com/alvmarrod/link-weaver/internal/report"
	"github.com/alvmarrod/link-weaver/internal/similarity"
	"github.com/alvmarrod/link-weaver/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Phase names used for timing
const (
	PhaseBuild       = "build"
	PhaseMetrics     = "metrics"
	PhaseSimilarity  = "similarity"
	PhaseOpportunity = "opportunity"
	PhaseReport      = "report"
)

// Result holds every intermediate product of a run along with the report
type Result struct {
	RunID      string
	Graph      *linkgraph.Graph
	Metrics    *graphmetrics.Metrics
	Similarity *similarity.Index
	Report     *report.Report
}

// Pipeline runs Build, then Metrics and Similarity concurrently, then Detect and Generate.
// Each Run owns its own diagnostics; nothing is shared between runs.
type Pipeline struct {
	cfg     *config.Config
	log     logrus.FieldLogger
	tracker *metrics.Tracker
}

// New creates a pipeline; nil arguments fall back to defaults
func New(cfg *config.Config, log logrus.FieldLogger, tracker *metrics.Tracker) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if tracker == nil {
		tracker = metrics.NewTracker()
	}
	return &Pipeline{cfg: cfg, log: log, tracker: tracker}
}

// Run analyzes one snapshot of page records
func (p *Pipeline) Run(ctx context.Context, records []linkgraph.PageRecord) (*Result, error) {
	runID := uuid.NewString()
	log := p.log.WithField("run_id", runID)
	diags := diagnostic.NewCollector()

	log.Infof("Analysis starting: %d page records", len(records))
	p.tracker.RecordInput(len(records))

	stop := p.tracker.StartPhase(PhaseBuild)
	g, err := linkgraph.NewBuilder(log, diags).Build(records)
	stop()
	if err != nil {
		return nil, fmt.Errorf("failed to build link graph: %w", err)
	}
	p.tracker.RecordGraph(g.Len(), g.LinkCount(), g.ExternalLinkCount())

	var (
		m   *graphmetrics.Metrics
		idx *similarity.Index
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer p.tracker.StartPhase(PhaseMetrics)()
		m = graphmetrics.NewEngine(p.cfg.Metrics(), log, diags).Compute(g)
		return nil
	})
	eg.Go(func() error {
		defer p.tracker.StartPhase(PhaseSimilarity)()
		var err error
		idx, err = similarity.NewEngine(p.cfg.Similarity(), log).Compute(egCtx, g)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("analysis aborted: %w", err)
	}
	p.tracker.RecordAuthority(m.Iterations, m.Converged)
	p.tracker.RecordSimilarity(idx.CandidatesEvaluated(), idx.Len())

	stop = p.tracker.StartPhase(PhaseOpportunity)
	opps := opportunity.NewDetector(p.cfg.Opportunity(), log).Detect(g, m, idx)
	stop()

	stop = p.tracker.StartPhase(PhaseReport)
	entries := diags.Entries()
	r := report.Generate(g, m, opps, entries, p.cfg.Report())
	r.Meta = report.Meta{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Version:     version.Version,
	}
	stop()
	p.tracker.RecordResults(len(opps), len(entries))

	log.Infof("Analysis complete: %d pages, %d opportunities, %d diagnostics", g.Len(), len(opps), len(entries))
	if counts := diags.CountByKind(); len(counts) > 0 {
		log.WithFields(logrus.Fields{
			"ingestion_errors":   counts[diagnostic.KindIngestion],
			"integrity_warnings": counts[diagnostic.KindGraphIntegrity],
			"convergence":        counts[diagnostic.KindConvergence],
		}).Warn("Run finished with diagnostics")
	}

	return &Result{
		RunID:      runID,
		Graph:      g,
		Metrics:    m,
		Similarity: idx,
		Report:     r,
	}, nil
}
