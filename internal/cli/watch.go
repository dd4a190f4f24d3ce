package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/crewgate/internal/coordinator"
	"github.com/Dicklesworthstone/crewgate/internal/ratelimit"
	"github.com/Dicklesworthstone/crewgate/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var tool string
	var statsInterval time.Duration

	cmd := &cobra.Command{
		Use:   "watch [--tool NAME] -- <command> [args...]",
		Short: "Rebuild whenever watched files change",
		Long: `Run the build once, then again after every burst of file changes under
the configured watch paths. The workspace directory and ignore list are
skipped so mirror updates never retrigger a build.

Examples:
  crewgate watch --tool make -- make
  crewgate watch --tool pytest --stats-interval 30s -- pytest -q`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := coordinator.New(cfg, logger)
			return runWatch(cmd.Context(), c, tool, args, statsInterval)
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "", "Tool name used to pick the output parser (default: program name)")
	cmd.Flags().DurationVar(&statsInterval, "stats-interval", time.Minute, "How often to log coordination stats (0 disables)")
	return cmd
}

func runWatch(ctx context.Context, c *coordinator.Coordinator, tool string, argv []string, statsInterval time.Duration) error {
	build := func(ctx context.Context, trigger []string) {
		res, err := c.RunBuild(ctx, tool, argv)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("build failed to run", "error", err)
			}
			return
		}
		logger.Info("build finished",
			"status", res.Status,
			"diagnostics", len(res.Diagnostics),
			"duration", ratelimit.FormatDelay(res.Duration),
			"changed", len(trigger))
	}

	ignore := append([]string{}, cfg.Watch.Ignore...)
	if abs, err := filepath.Abs(cfg.Workspace); err == nil {
		ignore = append(ignore, abs)
	}
	w, err := watch.New(watch.Options{
		Paths:    cfg.Watch.Paths,
		Ignore:   ignore,
		Debounce: time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
		Logger:   logger,
	}, build)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	build(ctx, nil)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx)
	})
	if statsInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s := c.Stats()
					logger.Info("coordination stats",
						"build_status", s.BuildStatus,
						"unclaimed", s.Unclaimed,
						"patches", s.Patches,
						"agents", len(s.Budgets))
				}
			}
		})
	}

	logger.Info("watching for changes", "paths", cfg.Watch.Paths, "dirs", len(w.Watched()))
	return g.Wait()
}
