package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/shroot/internal/page"
	"github.com/conneroisu/shroot/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the page directory with live reload",
	Long: `Start the development server over pages.dir. Pages are expanded on request
and kept live, so fragments posted to /api/pages/{name}/fragments are
registered and injected like markup streamed into a browser.

Examples:
  shroot serve
  shroot serve --port 3000 --dir site
  SHROOT_DEVELOPMENT_HOT_RELOAD=false shroot serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().StringP("dir", "d", "./pages", "Page directory")
	serveCmd.Flags().Bool("no-reload", false, "Disable live reload")
	AddFlagValidation(serveCmd, "port", ValidatePort)

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("pages.dir", serveCmd.Flags().Lookup("dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		cfg.Development.HotReload = false
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

	srv, err := server.New(cfg, store, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s:%d\n", cfg.Pages.Dir, cfg.Server.Host, cfg.Server.Port)
	if err := srv.Start(ctx); err != nil {
		return explain(cfg, err)
	}
	return srv.Shutdown(context.Background())
}
