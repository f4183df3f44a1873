package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/fixturefeed/match"
)

// withApp loads config, builds the app with logs on stderr, runs fn and
// closes the app.
func withApp(root *rootOptions, cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := root.load(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func parseDateFlag(a *app, raw string) (time.Time, error) {
	return match.ParseDate(raw, a.svc.Location(), time.Now())
}

func newMatchesCmd(root *rootOptions) *cobra.Command {
	var (
		date  string
		stale bool
	)
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List fixtures for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(root, cmd, func(a *app) error {
				day, err := parseDateFlag(a, date)
				if err != nil {
					return err
				}
				list, err := a.svc.MatchesOn(cmd.Context(), day, stale)
				if err != nil {
					return err
				}
				return printJSON(cmd, list)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&stale, "stale", true, "accept an expired cached copy if the provider fails")
	return cmd
}

func newCompareCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <team> <team>",
		Short: "Compare two teams' recent form",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(root, cmd, func(a *app) error {
				report, err := a.svc.CompareTeams(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

func newSuggestCmd(root *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest outcomes for a day's priced fixtures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(root, cmd, func(a *app) error {
				day, err := parseDateFlag(a, date)
				if err != nil {
					return err
				}
				report, err := a.svc.Suggest(cmd.Context(), day)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today)")
	return cmd
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	var warm bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Warm the cache and print pipeline statistics",
		Long: `stats runs the cache warmup (unless --warm=false) and prints the resulting
pipeline and error statistics. With Redis enabled the shared tier's
contents are reflected in the counters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(root, cmd, func(a *app) error {
				if warm {
					a.warmup(cmd.Context())
				}
				return printJSON(cmd, a.svc.Stats())
			})
		},
	}
	cmd.Flags().BoolVar(&warm, "warm", true, "run the warmup first")
	return cmd
}
