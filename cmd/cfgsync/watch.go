package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/cfgsync/internal/settings"
	"github.com/dshills/cfgsync/internal/settings/notify"
)

func newWatchCommand(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print setting changes as the files are edited",
		Long: `Watch every settings file in scope and print each effective change
until interrupted. Use --path to limit output to one group of settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, path)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "only report changes at or below this key")
	return cmd
}

func (a *app) watch(ctx context.Context, path string) error {
	logger := a.cfg.NewLogger(a.stderr)
	opts := append(a.cfg.ManagerOptions(logger),
		settings.WithFS(osFS),
		settings.OnError(func(err *settings.ReloadError) {
			fmt.Fprintf(a.stderr, "error: %v\n", err)
		}),
	)
	m := settings.New(opts...)
	defer m.Close()

	if err := m.Load(ctx); err != nil {
		return err
	}

	report := func(c notify.Change) {
		switch c.Type {
		case notify.ChangeReload:
			fmt.Fprintf(a.stdout, "reloaded %s (%s)\n", c.File, c.Layer)
		case notify.ChangeDelete:
			fmt.Fprintf(a.stdout, "- %s\n", c.Path)
		default:
			fmt.Fprintf(a.stdout, "~ %s = %s  (%s)\n", c.Path, a.inline(a.stdout, c.NewValue), c.Layer)
		}
	}
	if path != "" {
		m.SubscribePath(path, report)
	} else {
		m.Subscribe(report)
	}

	if err := m.Watch(); err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "watching %d settings files, press Ctrl+C to stop\n", len(m.Layers()))
	<-ctx.Done()
	return nil
}
