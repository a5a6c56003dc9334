package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidshrink/internal/api"
	"vidshrink/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored compression results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			totals, err := store.Totals(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				resp := api.HistoryResponse{Records: make([]api.Record, 0, len(records)), Totals: api.FromTotals(totals)}
				for _, rec := range records {
					resp.Records = append(resp.Records, api.FromRecord(rec))
				}
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No history yet")
				return nil
			}
			spec := tableSpec{
				headers: []string{"File", "Status", "Original", "Compressed", "Ratio", "Impact", "Updated"},
				aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
			}
			for _, rec := range records {
				spec.add(
					rec.FileName,
					titleStatus(rec.Status),
					formatBytes(rec.OriginalSizeBytes),
					formatBytes(rec.CompressedSizeBytes),
					formatRatio(rec.CompressionRatio),
					dash(rec.ImpactLabel),
					formatTimestamp(rec.Timestamp),
				)
			}
			spec.footer = []string{
				fmt.Sprintf("%d completed", totals.Completed),
				"",
				formatBytes(totals.OriginalSizeBytes),
				formatBytes(totals.CompressedSizeBytes),
				"",
				"saved",
				formatBytes(totals.SavedBytes),
			}
			fmt.Fprintln(out, spec.render())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of records")
	return cmd
}
