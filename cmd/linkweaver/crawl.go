package main

import (
	"time"

	"github.com/alvmarrod/link-weaver/internal/ingest"
	"github.com/alvmarrod/link-weaver/internal/metrics"
	"github.com/spf13/cobra"
)

func newCrawlCmd(a *app) *cobra.Command {
	var (
		seed     string
		maxDepth int
		out      outputFlags
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a site from a seed URL and analyze the pages found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out.resolve(a)
			cc := a.cfg.Crawler
			if seed != "" {
				cc.SeedURL = seed
			}
			if cmd.Flags().Changed("max-depth") {
				cc.MaxDepth = maxDepth
			}

			a.log.Infof("Crawl configuration: seed=%s, depth=%d, workers=%d", cc.SeedURL, cc.MaxDepth, cc.ConcurrentWorkers)

			tracker := metrics.NewTracker()
			crawler, err := ingest.NewCrawler(ingest.CrawlConfig{
				SeedURL:        cc.SeedURL,
				MaxDepth:       cc.MaxDepth,
				MaxPages:       cc.MaxPages,
				Workers:        cc.ConcurrentWorkers,
				RequestTimeout: a.cfg.RequestTimeout(),
				Delay:          time.Duration(cc.DelayMs) * time.Millisecond,
				RequestsPerSec: cc.RequestsPerSecond,
				UserAgent:      cc.UserAgent,
			}, a.log, tracker)
			if err != nil {
				return finish(a, tracker, out, err)
			}

			stop := tracker.StartPhase("crawl")
			records, err := crawler.Crawl(cmd.Context())
			stop()
			if err != nil {
				return finish(a, tracker, out, err)
			}
			return finish(a, tracker, out, analyze(cmd.Context(), a, tracker, out, records))
		},
	}
	cmd.Flags().StringVarP(&seed, "seed", "s", "", "seed URL (default crawler.seed_url from config)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "clicks to follow from the seed (default crawler.max_depth from config)")
	out.register(cmd)
	return cmd
}
