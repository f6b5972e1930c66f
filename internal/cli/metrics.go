package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-copilot/internal/db"
	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

func newMetricsCmd(a *app) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show usage totals and the most recent metrics records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return a.metrics(cmd.Context(), limit, asJSON)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent records to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (a *app) metrics(ctx context.Context, limit int, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sum, err := store.SummarizeMetrics(ctx)
	if err != nil {
		return fmt.Errorf("summarize metrics: %w", err)
	}
	recs, err := store.ListMetrics(ctx, min(limit, db.MaxListLimit))
	if err != nil {
		return fmt.Errorf("list metrics: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Summary *models.MetricsSummary  `json:"summary"`
			Records []*models.MetricsRecord `json:"records"`
		}{sum, recs})
	}
	renderMetrics(a.stdout, sum, recs)
	return nil
}
