package main

import (
	"github.com/spf13/cobra"

	"github.com/jonwraymond/fixturefeed/api"
	"github.com/jonwraymond/fixturefeed/auth"
	"github.com/jonwraymond/fixturefeed/config"
	"github.com/jonwraymond/fixturefeed/observe"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr     string
		noWarmup bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.API.Address = addr
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			admin, err := adminAuthenticator(cfg)
			if err != nil {
				return err
			}
			if admin == nil {
				a.logger.Warn(ctx, "no admin credentials configured, cache administration disabled")
			}

			srv, err := api.New(api.Options{
				Service: a.svc,
				Health:  a.health,
				Admin:   admin,
				Breaker: a.client.Breaker(),
				Metrics: a.metricsHandler(),
				Logger:  a.logger,
				Version: version,
			})
			if err != nil {
				return err
			}

			if cfg.Service.WarmupOnStart && !noWarmup {
				a.warmup(ctx)
			}
			a.logger.Info(ctx, "starting", observe.Field{Key: "version", Value: version})
			return srv.Serve(ctx, cfg.API.Address)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides api.address)")
	cmd.Flags().BoolVar(&noWarmup, "no-warmup", false, "skip the startup cache warmup")
	return cmd
}

// adminAuthenticator builds the admin chain from the configured JWT secret
// and API keys. It returns nil when neither is configured.
func adminAuthenticator(cfg *config.Config) (auth.Authenticator, error) {
	var chain auth.Chain
	if cfg.API.JWTSecret != "" {
		jwtAuth, err := auth.NewJWTAuthenticator(auth.JWTConfig{
			Secret: []byte(cfg.API.JWTSecret),
			Issuer: cfg.API.JWTIssuer,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, jwtAuth)
	}
	if keys := auth.AdminKeys(cfg.API.AdminKeys); len(keys) > 0 {
		chain = append(chain, auth.NewAPIKeyAuthenticator("", keys...))
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}
