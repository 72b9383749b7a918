package main

import (
	"context"
	"fmt"

	"github.com/alvmarrod/link-weaver/internal/ingest"
	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/alvmarrod/link-weaver/internal/pipeline"
	"github.com/alvmarrod/link-weaver/internal/storage"
	"github.com/spf13/cobra"
)

// outputFlags override where a run writes its artifacts
type outputFlags struct {
	reportPath  string
	dbPath      string
	metricsPath string
	noStore     bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.reportPath, "out", "o", "", "report JSON path (default from config)")
	cmd.Flags().StringVar(&o.dbPath, "db", "", "SQLite database path (default from config)")
	cmd.Flags().StringVar(&o.metricsPath, "metrics", "", "run metrics JSON path (default from config)")
	cmd.Flags().BoolVar(&o.noStore, "no-store", false, "do not persist the run to the database")
}

func (o *outputFlags) resolve(a *app) {
	if o.reportPath == "" {
		o.reportPath = a.cfg.ReportPath
	}
	if o.dbPath == "" {
		o.dbPath = a.cfg.DBPath
	}
	if o.metricsPath == "" {
		o.metricsPath = a.cfg.MetricsPath
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		pagesPath string
		linksPath string
		out       outputFlags
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a site export given as pages and links CSV files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out.resolve(a)
			tracker := metrics.NewTracker()

			records, err := ingest.LoadCSV(pagesPath, linksPath, a.log)
			if err != nil {
				return finish(a, tracker, out, err)
			}
			return finish(a, tracker, out, analyze(cmd.Context(), a, tracker, out, records))
		},
	}
	cmd.Flags().StringVarP(&pagesPath, "pages", "p", "", "pages CSV (url, title, h1, content, meta_description, importance, entry_point)")
	cmd.Flags().StringVarP(&linksPath, "links", "l", "", "links CSV (source_url, target_url, anchor)")
	_ = cmd.MarkFlagRequired("pages")
	out.register(cmd)
	return cmd
}

// analyze runs the pipeline over records and writes the report, then persists it unless disabled
func analyze(ctx context.Context, a *app, tracker *metrics.Tracker, out outputFlags, records []linkgraph.PageRecord) error {
	result, err := pipeline.New(a.cfg, a.log, tracker).Run(ctx, records)
	if err != nil {
		return err
	}

	if err := result.Report.WriteFile(out.reportPath); err != nil {
		return err
	}
	a.log.Infof("Report written to %s (run %s)", out.reportPath, result.RunID)

	if out.noStore {
		return nil
	}

	store, err := storage.NewStorage(out.dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	if _, err := store.SaveReport(result.Report); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}
	a.log.Infof("Run %s stored in %s", result.RunID, out.dbPath)
	return nil
}

// finish writes the run metrics whatever the outcome and passes err through
func finish(a *app, tracker *metrics.Tracker, out outputFlags, err error) error {
	reason := "completed"
	if err != nil {
		reason = "failed"
	}

	a.log.Info("Final stats: " + tracker.LogProgress())
	if werr := tracker.WriteToFile(out.metricsPath, reason); werr != nil {
		a.log.Errorf("Failed to write metrics: %v", werr)
	} else {
		a.log.Infof("Metrics written to %s", out.metricsPath)
	}
	return err
}
