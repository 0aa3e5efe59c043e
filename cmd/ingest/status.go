package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/incident-ingest-service/internal/adapter/sqlite"
	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var (
		limit     int
		incidents bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent ingestion runs and, optionally, stored incidents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, err := sqlite.Open(ctx, cfg.DatabasePath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n\n", store.Path())
			printRuns(out, runs)

			if !incidents {
				return nil
			}
			list, err := store.ListIncidents(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printIncidents(out, list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of rows to show")
	cmd.Flags().BoolVar(&incidents, "incidents", false, "also list the most recent incidents")
	return cmd
}

func printRuns(w io.Writer, runs []domain.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No ingestion runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSOURCE\tPARAMS\tDURATION\tFETCHED\tINSERTED\tSKIPPED\tFAILED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Format(time.RFC3339), r.Source, dash(r.Params),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Tally.Fetched, r.Tally.Inserted, r.Tally.Skipped, r.Tally.Failed, dash(r.Error))
	}
	tw.Flush()
}

func printIncidents(w io.Writer, list []domain.Incident) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No incidents stored.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tCATEGORY\tTITLE")
	for _, inc := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", inc.ID, inc.Source, inc.Category, inc.Title)
	}
	tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
