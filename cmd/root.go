// Package cmd provides the shroot command-line interface.
//
// Configuration is read, highest priority first, from command-line flags,
// SHROOT_<SECTION>_<OPTION> environment variables, the file named by
// --config or SHROOT_CONFIG_FILE, and .shroot.yml in the working
// directory.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conneroisu/shroot/internal/behavior"
	"github.com/conneroisu/shroot/internal/config"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/logging"
	"github.com/conneroisu/shroot/internal/page"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "shroot",
	Short: "Expand declarative shadow-root components in HTML pages",
	Long: `shroot registers <template> declarations found in HTML pages and injects
their content as shadow roots into every matching element, including elements
that arrive later through partial page delivery.

Quick Start:
  shroot expand page.html            Expand a page to declarative shadow DOM
  shroot list page.html -f yaml      Show the components a page declares
  shroot serve                       Serve ./pages with live reload
  shroot watch                       Log registrations as pages change`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .shroot.yml, can also use SHROOT_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the config file and the environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".shroot")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing file is fine; defaults apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig reads the merged configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		err = fmt.Errorf("failed to load configuration: %w", err)
		return nil, shrooterrors.NewEnhancedError(err.Error(), err,
			shrooterrors.ConfigurationError(err.Error(), viper.ConfigFileUsed(), nil))
	}
	return cfg, nil
}

// explain attaches suggestions to err using what cfg says about the page
// and behavior directories.
func explain(cfg *config.Config, err error) error {
	if err == nil || cfg == nil {
		return err
	}
	sc := &shrooterrors.SuggestionContext{
		ConfigPath:   viper.ConfigFileUsed(),
		PagesDir:     cfg.Pages.Dir,
		BehaviorsDir: cfg.Behaviors.Dir,
		Behaviors:    behavior.NewCatalog().Names(),
		Port:         cfg.Server.Port,
	}
	if names, lerr := page.NewStore(cfg.Pages, page.Options{}).Names(); lerr == nil {
		sc.Pages = names
	}
	return shrooterrors.WithSuggestions(err, sc)
}

// newLogger builds the command logger from the logging section. When a log
// directory is configured, records also go to a dated JSON file there. The
// returned closer releases that file.
func newLogger(cfg config.LoggingConfig, out io.Writer) (logging.Logger, func() error, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	lc := &logging.LoggerConfig{
		Level:  level,
		Format: strings.ToLower(cfg.Format),
		Output: out,
	}
	console := logging.NewLogger(lc)
	if cfg.Dir == "" {
		return console, func() error { return nil }, nil
	}

	file, err := logging.NewFileLogger(lc, cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewMultiLogger(console, file), file.Close, nil
}
