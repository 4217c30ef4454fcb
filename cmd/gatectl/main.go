// Command gatectl administers rules, escalations and tokens against the
// configured stores.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/upb/action-gate/app"
	"github.com/upb/action-gate/config"
	"github.com/upb/action-gate/internal/observability"
)

func main() {
	root := newRootCmd(loadDependencies, os.Stdout)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loader builds the dependency graph a command operates on and the func
// that releases it
type loader func(ctx context.Context) (*app.Dependencies, func() error, error)

func loadDependencies(ctx context.Context) (*app.Dependencies, func() error, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	// CLI output goes to stdout; keep the logger quiet unless asked.
	if os.Getenv("LOG_LEVEL") == "" {
		cfg.Observability.LogLevel = "warn"
	}
	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return nil, nil, err
	}
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return deps, func() error { return deps.Close(context.Background()) }, nil
}

// cli carries the loaded dependencies between cobra hooks
type cli struct {
	load    loader
	deps    *app.Dependencies
	release func() error
	out     io.Writer
}

func newRootCmd(load loader, out io.Writer) *cobra.Command {
	c := &cli{load: load, out: out}

	root := &cobra.Command{
		Use:   "gatectl",
		Short: "Administer the action gate",
		Long: `gatectl manages gating rules, escalated users and API tokens.

It reads the same environment as gate-server (DATABASE_URL, REDIS_ADDR,
JWT_SECRET, ...) and talks to the stores directly.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			deps, release, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			c.deps, c.release = deps, release
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.release == nil {
				return nil
			}
			return c.release()
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	root.AddCommand(c.rulesCmd())
	root.AddCommand(c.escalationsCmd())
	root.AddCommand(c.usersCmd())
	root.AddCommand(c.ordersCmd())
	root.AddCommand(c.invokeCmd())
	root.AddCommand(c.tokenCmd())

	return root
}
