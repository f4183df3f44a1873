package main

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/fixturefeed/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "fixturefeed",
		Short: "Cached football fixtures, form and odds",
		Long: `fixturefeed fetches fixtures and team form from a provider, caches them
in memory and optionally Redis, and serves them over HTTP or the command line.

Settings come from fixturefeed.yaml (or --config) and FIXTUREFEED_* variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./fixturefeed.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMatchesCmd(opts),
		newCompareCmd(opts),
		newSuggestCmd(opts),
		newStatsCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Context(), o.configPath)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
