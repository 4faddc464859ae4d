package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/shroot/internal/config"
	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/logging"
	"github.com/conneroisu/shroot/internal/page"
	"github.com/spf13/cobra"
)

var expandCmd = &cobra.Command{
	Use:     "expand <page.html>",
	Aliases: []string{"e"},
	Short:   "Expand a page to declarative shadow DOM",
	Long: `Parse a page, register its declarations, inject every matching element and
print the result with each shadow root serialized as
<template shadowrootmode="open|closed">.

Examples:
  shroot expand index.html
  shroot expand index.html -o dist/index.html
  shroot expand index.html --manifest components.yaml --subtree
  cat index.html | shroot expand -`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

var (
	expandFlags  *StandardFlags
	expandStrict bool
)

func init() {
	rootCmd.AddCommand(expandCmd)

	expandFlags = AddStandardFlags(expandCmd, "declarations", "output")
	expandCmd.Flags().BoolVar(&expandStrict, "strict", false, "Fail when the page reports any issue")
}

func runExpand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	expandFlags.ApplyDeclarations(cmd, cfg)

	logger, closeLog, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	p, err := openPageFile(cmd.Context(), cfg, logger, args[0], cmd.InOrStdin())
	if err != nil {
		return explain(cfg, err)
	}
	defer p.Close()

	out, err := p.Render(contextOrBackground(cmd.Context()))
	if err != nil {
		return err
	}

	issues := p.Issues()
	reportIssues(cmd.ErrOrStderr(), issues)
	if expandStrict && len(issues) > 0 {
		return fmt.Errorf("%s reported %d issue(s)", args[0], len(issues))
	}

	return expandFlags.WriteOutput(cmd.OutOrStdout(), []byte(out))
}

// openPageFile opens path, or stdin for "-", as a live page configured
// from cfg.
func openPageFile(ctx context.Context, cfg *config.Config, logger logging.Logger, path string, stdin io.Reader) (*page.Page, error) {
	ctx = contextOrBackground(ctx)

	var (
		data []byte
		err  error
		name = "stdin"
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err != nil {
		return nil, shrooterrors.NewIOError(shrooterrors.ErrCodeFileNotFound, "read page", err).WithFile(path)
	}

	opts, err := page.OptionsFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts.SettleTimeout = cfg.Behaviors.LoadTimeout + 5*time.Second
	return page.Open(ctx, name, path, string(data), opts)
}

func reportIssues(w io.Writer, issues []shrooterrors.Issue) {
	for _, issue := range issues {
		location := issue.File
		if issue.Component != "" {
			location = strings.TrimPrefix(location+" "+issue.Component, " ")
		}
		fmt.Fprintf(w, "warning: [%s] %s (%s)\n", issue.Code, issue.Message, location)
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
