// Command matchctl is the operator CLI for the matching engine: one-off
// geocoding, travel estimates, match runs and backfill passes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/healnet/donation-matching/internal/bootstrap"
	"github.com/healnet/donation-matching/internal/config"
	"github.com/healnet/donation-matching/internal/domain"
	"github.com/healnet/donation-matching/internal/geo"
	"github.com/healnet/donation-matching/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel string
	output   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "matchctl",
		Short:         "Operate the donation matching engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format (table, json)")

	root.AddCommand(
		newGeocodeCmd(opts),
		newDistanceCmd(opts),
		newMatchCmd(opts),
		newBackfillCmd(opts),
	)
	return root
}

// env loads configuration and a stderr logger for one command run.
func (o *rootOptions) env() (*config.Config, *slog.Logger, *observability.Metrics, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if o.output != "table" && o.output != "json" {
		return nil, nil, nil, fmt.Errorf("unknown output format %q", o.output)
	}
	logger := observability.NewLogger(o.logLevel, "text")
	return cfg, logger, observability.NewMetricsForTesting(), nil
}

func newGeocodeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "geocode <address>",
		Short: "Resolve an address through the provider chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, metrics, err := opts.env()
			if err != nil {
				return err
			}
			engine, err := bootstrap.NewEngine(cfg, nil, nil, logger, metrics)
			if err != nil {
				return err
			}
			result, err := engine.Geocoder.Geocode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			return printGeocode(cmd.OutOrStdout(), result)
		},
	}
}

func newDistanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "distance <lat,lng> <lat,lng>",
		Short: "Estimate travel between two coordinates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			origin, err := parseCoordinate(args[0])
			if err != nil {
				return err
			}
			destination, err := parseCoordinate(args[1])
			if err != nil {
				return err
			}
			cfg, logger, metrics, err := opts.env()
			if err != nil {
				return err
			}
			engine, err := bootstrap.NewEngine(cfg, nil, nil, logger, metrics)
			if err != nil {
				return err
			}
			est := engine.Estimator.EstimateTravel(cmd.Context(), origin, destination)
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), est)
			}
			return printEstimate(cmd.OutOrStdout(), est)
		},
	}
}

func newMatchCmd(opts *rootOptions) *cobra.Command {
	var (
		maxKm float64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "match <donation-id>",
		Short: "Rank open needs for a stored donation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, metrics, err := opts.env()
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), cfg, logger, metrics)
			if err != nil {
				return err
			}
			defer app.Close()

			matches, err := app.Matcher.MatchDonation(cmd.Context(), args[0], maxKm, limit)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), matches)
			}
			return printMatches(cmd.OutOrStdout(), matches)
		},
	}
	cmd.Flags().Float64Var(&maxKm, "max-km", 0, "search radius in km (default MATCH_MAX_DISTANCE_KM)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum matches (default MATCH_LIMIT)")
	return cmd
}

func newBackfillCmd(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Geocode donations and needs that have no coordinates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, metrics, err := opts.env()
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), cfg, logger, metrics)
			if err != nil {
				return err
			}
			defer app.Close()

			if once {
				n, err := app.Backfill.RunPass(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "found %d pending records\n", n)
				return nil
			}

			app.Backfill.Start(cmd.Context())
			<-cmd.Context().Done()
			app.Backfill.Stop()
			<-app.Backfill.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printGeocode(w io.Writer, r domain.GeocodeResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "address\t%s\n", r.FormattedAddress)
	fmt.Fprintf(tw, "coordinates\t%.6f,%.6f\n", r.Coordinates.Lat, r.Coordinates.Lng)
	fmt.Fprintf(tw, "quality\t%s\n", r.Quality)
	fmt.Fprintf(tw, "confidence\t%.2f\n", r.Confidence)
	fmt.Fprintf(tw, "provider\t%s\n", r.Provider)
	return tw.Flush()
}

func printEstimate(w io.Writer, e domain.TravelEstimate) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "distance\t%s\n", geo.FormatDistance(e.DistanceKm))
	fmt.Fprintf(tw, "straight line\t%s\n", geo.FormatDistance(e.StraightLineKm))
	fmt.Fprintf(tw, "travel time\t%s\n", geo.FormatDrivingTime(e.DrivingTimeMinutes))
	fmt.Fprintf(tw, "logistics cost\t%.2f\n", e.LogisticsCost)
	fmt.Fprintf(tw, "source\t%s\n", e.Source)
	return tw.Flush()
}

func printMatches(w io.Writer, matches []domain.ScoredMatch) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintln(w, "no matches")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNEED\tITEM\tURGENCY\tSCORE\tQUALITY\tDISTANCE\tTIME")
	for i, m := range matches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.3f\t%s\t%s\t%s\n",
			i+1, m.Need.ID, m.Need.Item, m.Need.Urgency, m.Score.Total, m.MatchQuality,
			geo.FormatDistance(m.DistanceKm), geo.FormatDrivingTime(m.DrivingTimeMinutes))
	}
	return tw.Flush()
}
