package cmd

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/conneroisu/shroot/internal/manifest"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list <page.html>",
	Aliases: []string{"l", "ls"},
	Short:   "List the components a page declares",
	Long: `Open a page, run a full catch-up scan and print its registry: every
registered type with its shadow mode, behavior, instance count and the
registered types its content uses.

Non-table formats produce a manifest that --manifest can preload.

Examples:
  shroot list index.html
  shroot list index.html -f yaml
  shroot list index.html -f msgpack -o components.mp`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

var (
	listFlags  *StandardFlags
	listFormat string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listFlags = AddStandardFlags(listCmd, "declarations", "output")
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "Output format (table|json|yaml|toml|msgpack)")
	AddFlagValidation(listCmd, "format", ValidateFormat("table", "json", "yaml", "yml", "toml", "msgpack", "mp"))
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	listFlags.ApplyDeclarations(cmd, cfg)

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

	m, err := p.Manifest(contextOrBackground(cmd.Context()))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if listFormat == "table" {
		if err := outputTable(&buf, m); err != nil {
			return err
		}
	} else {
		format, err := manifest.ParseFormat(listFormat)
		if err != nil {
			return err
		}
		if err := m.Encode(&buf, format); err != nil {
			return err
		}
	}
	return listFlags.WriteOutput(cmd.OutOrStdout(), buf.Bytes())
}

func outputTable(out io.Writer, m *manifest.Manifest) error {
	if len(m.Components) == 0 {
		_, err := fmt.Fprintln(out, "No components registered")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tMODE\tBEHAVIOR\tINSTANCES\tUSES")
	for _, c := range m.Components {
		behavior := c.Behavior
		if behavior == "" {
			behavior = "-"
		}
		mode := c.Mode
		if c.Shadowless {
			mode = "none"
		}
		uses := "-"
		if len(c.Uses) > 0 {
			uses = strings.Join(c.Uses, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.TypeID, mode, behavior, c.Instances, uses)
	}
	return w.Flush()
}
