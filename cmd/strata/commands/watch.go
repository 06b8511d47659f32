package commands

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const defaultWatchDelay = 500 * time.Millisecond

func newWatchCommand(a *app) *cobra.Command {
	opts := &lookupOptions{}
	var (
		metricsAddr string
		delay       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch KEY...",
		Short: "Re-run a lookup whenever configuration or data changes",
		Long: `Watch the hierarchy configurations and data directories and print the
result of the lookup after every change. Each run uses a fresh session so
no cached data survives a change.

Lookup metrics are served when metrics are enabled in the settings or
--metrics-addr is given.`,
		Example: `  # Follow a key while editing data files
  strata watch ntp::servers --scope facts.yaml

  # Also expose Prometheus metrics
  strata watch ntp::servers --metrics-addr :9090`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd, args, opts, metricsAddr, delay)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on")
	cmd.Flags().DurationVar(&delay, "delay", defaultWatchDelay, "quiet period before a change triggers a lookup")

	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, names []string, opts *lookupOptions, metricsAddr string, delay time.Duration) error {
	ctx := cmd.Context()
	sess, err := a.openSession()
	if err != nil {
		return err
	}
	defer sess.Close(context.Background())

	if metricsAddr == "" && sess.settings.Metrics.Enabled {
		metricsAddr = sess.settings.Metrics.ListenAddress
	}
	if metricsAddr != "" {
		go func() {
			if err := sess.tel.Metrics.Serve(ctx, metricsAddr, sess.logger); err != nil {
				sess.log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dirs := sess.watchDirs()
	for _, dir := range dirs {
		if err := a.watchDirectory(watcher, dir); err != nil {
			sess.log.WithField("path", dir).WithError(err).Warn("Failed to watch directory")
		}
	}
	sess.log.Infof("Watching %d directories for changes", len(dirs))

	run := func() {
		err := sess.trace(ctx, "watch", func(ctx context.Context) error {
			return a.lookupOnce(ctx, cmd, sess, names, opts)
		})
		if err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
		// Export the spans of this run before waiting for the next change
		if err := sess.tel.Tracer.ForceFlush(ctx); err != nil {
			sess.log.WithError(err).Warn("Failed to flush spans")
		}
	}
	run()

	// Debounce bursts of events
	timer := time.NewTimer(delay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			sess.log.Info("Watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if isDir, _ := afero.IsDir(a.fs, event.Name); isDir {
					if err := a.watchDirectory(watcher, event.Name); err != nil {
						sess.log.WithField("path", event.Name).WithError(err).Warn("Failed to watch directory")
					}
				}
			}
			sess.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Change detected")
			timer.Reset(delay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			sess.log.WithError(err).Error("Watcher error")

		case <-timer.C:
			fmt.Fprintf(a.out, "--- %s\n", time.Now().Format(time.RFC3339))
			run()
		}
	}
}

// watchDirs returns the existing directories that hold configurations and
// data of the active layers. Nested directories are covered by watchDirectory.
func (s *session) watchDirs() []string {
	candidates := []string{
		filepath.Dir(s.settings.HieraConfig),
		s.settings.EnvironmentDir(),
	}
	seen := map[string]bool{}
	var dirs []string
	for _, dir := range candidates {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if ok, _ := afero.DirExists(s.app.fs, dir); ok {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// watchDirectory adds dir and all directories below it to the watcher.
func (a *app) watchDirectory(watcher *fsnotify.Watcher, dir string) error {
	return afero.Walk(a.fs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
