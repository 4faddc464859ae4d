package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/shroot/internal/config"
	"github.com/conneroisu/shroot/internal/logging"
	"github.com/conneroisu/shroot/internal/page"
	"github.com/conneroisu/shroot/internal/watcher"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Reprocess pages as they change",
	Long: `Watch pages.dir and reopen every page that changes, reporting how many
declarations were registered, how many elements were injected and any issue
raised along the way. Nothing is served.

Examples:
  shroot watch
  shroot watch --dir site --verbose`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchVerbose bool
	watchDir     string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Print every issue")
	watchCmd.Flags().StringVarP(&watchDir, "dir", "d", "", "Page directory (defaults to pages.dir)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchDir != "" {
		cfg.Pages.Dir = watchDir
	}

	logger, closeLog, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	opts, err := page.OptionsFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	store := page.NewStore(cfg.Pages, opts)
	defer store.Close()

	fileWatcher, err := newPageWatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer fileWatcher.Stop()

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fileWatcher.AddHandler(func(events []watcher.ChangeEvent) error {
		for _, event := range events {
			reprocess(ctx, out, store, event)
		}
		return nil
	})

	names, err := store.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		report(ctx, out, store, name)
	}

	if err := fileWatcher.AddRecursive(cfg.Pages.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfg.Pages.Dir, err)
	}
	if err := fileWatcher.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "Watching %s (press Ctrl+C to stop)\n", cfg.Pages.Dir)
	<-ctx.Done()
	return nil
}

func newPageWatcher(cfg *config.Config, logger logging.Logger) (*watcher.FileWatcher, error) {
	fileWatcher, err := watcher.NewFileWatcher(cfg.Development.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	fileWatcher.AddFilter(watcher.NoHiddenFilter)
	fileWatcher.AddFilter(watcher.ExtensionFilter(cfg.Pages.Extensions...))
	fileWatcher.AddFilter(watcher.ExcludeFilter(cfg.Pages.Exclude...))
	return fileWatcher, nil
}

func reprocess(ctx context.Context, out io.Writer, store *page.Store, event watcher.ChangeEvent) {
	name, ok := store.Invalidate(event.Path)
	if !ok {
		return
	}
	switch event.Type {
	case watcher.EventTypeDeleted, watcher.EventTypeRenamed:
		fmt.Fprintf(out, "%s: %s\n", name, event.Type)
		return
	}
	report(ctx, out, store, name)
}

func report(ctx context.Context, out io.Writer, store *page.Store, name string) {
	p, err := store.Get(ctx, name)
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", name, err)
		return
	}
	stats := p.Stats()
	issues := p.Issues()
	fmt.Fprintf(out, "%s: %d registered, %d injected, %d issue(s)\n",
		name, stats.Registered, stats.Injected, len(issues))
	if watchVerbose {
		reportIssues(out, issues)
	}
}
