package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/couchcryptid/incident-ingest-service/internal/observability"
	"github.com/couchcryptid/incident-ingest-service/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var city string
	cmd := &cobra.Command{
		Use:   "run <source> [source...]",
		Short: "Run one ingestion per named source and print the tallies",
		Long: `Run ingests the named sources (news, weather, social) once and exits.
Several sources run concurrently; a failure in one never stops the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := buildApp(ctx, cfg, logger, observability.NewMetrics(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			results := runSources(ctx, a.trigger, args, city)
			return printResults(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city for the weather source (defaults to WEATHER_CITY)")
	return cmd
}

func runSources(ctx context.Context, t *pipeline.Trigger, names []string, city string) map[string]pipeline.Result {
	params := map[string]pipeline.Params{}
	if city != "" {
		params[string(domain.SourceWeather)] = pipeline.Params{"city": city}
	}
	if len(names) == 1 {
		tally, err := t.RunIngest(ctx, names[0], params[names[0]])
		return map[string]pipeline.Result{names[0]: {Tally: tally, Err: err}}
	}
	return t.RunMany(ctx, names, params)
}

// printResults writes one line per source and reports an error when any
// run failed outright.
func printResults(w io.Writer, results map[string]pipeline.Result) error {
	names := make([]string, 0, len(results))
	for n := range results {
		names = append(names, n)
	}
	sort.Strings(names)

	var errs []error
	for _, n := range names {
		r := results[n]
		if r.Err != nil {
			fmt.Fprintf(w, "%-8s error: %v\n", n, r.Err)
			errs = append(errs, fmt.Errorf("%s: %w", n, r.Err))
			continue
		}
		fmt.Fprintf(w, "%-8s fetched=%d inserted=%d skipped=%d failed=%d\n",
			n, r.Tally.Fetched, r.Tally.Inserted, r.Tally.Skipped, r.Tally.Failed)
	}
	return errors.Join(errs...)
}
