package cmd

import (
	"context"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"wishdo/internal/shutdown"
	"wishdo/internal/tui"
	"wishdo/internal/utils"
	"wishdo/internal/watcher"
)

// newTUICmd creates the 'tui' command.
func newTUICmd(stderr io.Writer, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive terminal interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}

			mgr := shutdown.NewManager()
			mgr.Register("app", func(context.Context) error {
				a.Close()
				return nil
			})
			stopSignals := mgr.HandleSignals()
			defer stopSignals()

			// Another wishdo process mutating the cache (wishlist edits,
			// capability flags) shows up here; refresh folds it in.
			w, err := watcher.New(watcher.Config{
				Path: a.cfg.CachePath(),
				OnChange: func() {
					ctx, cancel := context.WithTimeout(mgr.Context(), 10*time.Second)
					defer cancel()
					if err := a.engine.Refresh(ctx); err != nil {
						utils.Debugf("background refresh failed: %v", err)
					}
				},
			})
			if err == nil {
				if startErr := w.Start(); startErr != nil {
					utils.Warnf("cache watcher not started: %v", startErr)
				} else {
					mgr.Register("watcher", func(context.Context) error {
						w.Stop()
						return nil
					})
				}
			} else {
				utils.Warnf("cache watcher unavailable: %v", err)
			}

			model := tui.New(mgr.Context(), a.engine)
			program := tea.NewProgram(model, tea.WithAltScreen())

			_, runErr := program.Run()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mgr.Shutdown(shutdownCtx)

			return runErr
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
