package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/praneth2580/storix/internal/api"
	"github.com/praneth2580/storix/internal/sync"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the local copy in sync and serve the local API",
		Long: `Run a full sync at startup, then poll for changes and flush queued
writes every poll interval until interrupted. When an API listen address is
configured, joined views and write intents are served over HTTP.

Press Ctrl-C once for a graceful stop, twice to exit immediately.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().String("listen", "", "API listen address (empty disables the API)")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ctx, stop := withShutdown(cmd.Context(), cc.Logger)
	defer stop()

	s, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer s.Close()

	sched := sync.NewScheduler(s.engine, cc.Cfg.PollInterval, cc.Logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })

	if cc.Cfg.Listen != "" {
		srv := api.NewServer(s.views, s.engine, cc.Logger)
		g.Go(func() error { return srv.Run(gctx, cc.Cfg.Listen) })

		cc.Statusf("Serving API on %s\n", cc.Cfg.Listen)
	}

	cc.Statusf("Watching for changes every %s. Press Ctrl-C to stop.\n", cc.Cfg.PollInterval)

	return g.Wait()
}
