package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/alvmarrod/link-weaver/internal/storage"
	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	var dbPath string

	openStore := func() (*storage.Storage, error) {
		if dbPath == "" {
			dbPath = a.cfg.DBPath
		}
		store, err := storage.NewStorage(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored analysis runs",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default from config)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns()
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	var limit int
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the ranked opportunities and diagnostics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			opps, err := store.GetOpportunities(run.RunID)
			if err != nil {
				return err
			}
			diags, err := store.CountDiagnostics(run.RunID)
			if err != nil {
				return err
			}
			return printRun(cmd.OutOrStdout(), run, opps, diags, limit)
		},
	}
	show.Flags().IntVarP(&limit, "limit", "n", 20, "opportunities to print (0 for all)")

	cmd.AddCommand(list, show)
	return cmd
}

func printRuns(w io.Writer, runs []*storage.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCREATED\tPAGES\tLINKS\tOPPORTUNITIES\tCONVERGED\tVERSION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%t\t%s\n",
			r.RunID, r.CreatedAt.Format(time.RFC3339), r.PageCount, r.LinkCount, r.OpportunityCount, r.Converged, r.Version)
	}
	return tw.Flush()
}

func printRun(w io.Writer, run *storage.Run, opps []storage.OpportunityRow, diags map[string]int, limit int) error {
	fmt.Fprintf(w, "Run %s (snapshot %s, %d pages, %d links)\n", run.RunID, run.SnapshotID, run.PageCount, run.LinkCount)

	kinds := make([]string, 0, len(diags))
	for kind := range diags {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %s: %d\n", kind, diags[kind])
	}

	if limit > 0 && len(opps) > limit {
		opps = opps[:limit]
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSOURCE\tTARGET\tANCHOR\tSCORE\tWHY")
	for _, o := range opps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.3f\t%s\n", o.Rank, o.SourceURL, o.TargetURL, o.Anchor, o.Score, o.Rationale)
	}
	return tw.Flush()
}
