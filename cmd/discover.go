package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/probekit/recipecrawl/internal/runs"
)

func newDiscoverCmd() *cobra.Command {
	var params runs.Params

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run a one-shot permalink discovery crawl",
		Long: `Probes the site's ID range and prints the discovered permalinks as
JSON once the crawl finishes. Range and threshold default to the site
profile and service configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd.Context(), params)
		},
	}

	cmd.Flags().StringVar(&params.Site, "site", "allrecipes", "site profile to crawl")
	cmd.Flags().Int64Var(&params.LowerID, "lower", 0, "first ID to probe (default from site profile)")
	cmd.Flags().Int64Var(&params.UpperID, "upper", 0, "last ID to probe (default from site profile)")
	cmd.Flags().IntVar(&params.Concurrency, "concurrency", 0, "probe worker count (default from config)")
	cmd.Flags().IntVar(&params.MaxConsecutive, "max-consecutive", 0, "miss streak that ends the crawl (default from config)")
	cmd.Flags().Int64SliceVar(&params.SkipIDs, "skip", nil, "IDs to exclude from probing")
	return cmd
}

func runDiscover(ctx context.Context, params runs.Params) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if params.Concurrency == 0 {
		params.Concurrency = a.Config().Discovery.Concurrency
	}
	if params.MaxConsecutive == 0 {
		params.MaxConsecutive = a.Config().Discovery.MaxConsecutive
	}

	rec, err := a.Dispatcher().Launch(params)
	if err != nil {
		return err
	}
	a.Logger().Info("crawl launched", zap.String("run_id", rec.ID))

	final, err := waitForRun(ctx, a, rec.ID)
	if err != nil {
		return err
	}

	permalinks, err := a.Store().ListPermalinks(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("list permalinks: %w", err)
	}

	out := map[string]any{
		"run":        final,
		"permalinks": permalinks,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if final.Status == runs.StatusFailed {
		return fmt.Errorf("crawl failed: %s", final.ErrorText)
	}
	return nil
}

// waitForRun polls the registry until the run reaches a terminal status.
// Cancellation forwards to the dispatcher and keeps waiting so the final
// record is still reported.
func waitForRun(ctx context.Context, a appServices, runID string) (runs.Record, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		rec, err := a.Runs().Get(runID)
		if err != nil {
			return runs.Record{}, err
		}
		if rec.Status.Terminal() {
			return rec, nil
		}
		select {
		case <-ticker.C:
		case <-done:
			_ = a.Dispatcher().Cancel(runID)
			done = nil
		}
	}
}
