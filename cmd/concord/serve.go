// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jllopis/concord/internal/app"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr, baseURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the orchestrator, HR and Finance agents",
		Long: `Serve every agent under /api/agents/{orchestrator,hr,finance}.

Without a governance API key the local policy table decides; with one,
decisions come from the policy service and fail closed when it is down.

Examples:
  # Defaults: :3000, local policy
  concord serve

  # Remote policy service
  CONCORD_GOVERNANCE_API_KEY=... concord serve --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := map[string]any{}
			if addr != "" {
				overrides["server.addr"] = addr
			}
			if baseURL != "" {
				overrides["server.base_url"] = baseURL
			}
			cfg, err := root.loadConfig(overrides)
			if err != nil {
				return err
			}
			configureLogging(cmd, cfg)

			a, err := app.New(cfg,
				app.WithLogger(slog.Default()),
				app.WithConfigPath(root.configPath),
				app.WithVersion(version),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public base URL advertised in agent cards")
	return cmd
}

// commandContext returns the command context, never nil.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
