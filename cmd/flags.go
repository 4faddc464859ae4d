package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/conneroisu/shroot/internal/config"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Declaration flags
	Manifest string
	Subtree  bool
	Define   bool
	Sanitize bool

	// Output flags
	Format string
	Output string
}

// AddStandardFlags adds standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "declarations":
			addDeclarationFlags(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags)
		}
	}

	return flags
}

func addDeclarationFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVar(&flags.Manifest, "manifest", "", "Preload declarations from a manifest file")
	cmd.Flags().BoolVar(&flags.Subtree, "subtree", false, "Look for declarations inside inserted subtrees")
	cmd.Flags().BoolVar(&flags.Define, "define", false, "Also recognize <define name> blocks")
	cmd.Flags().BoolVar(&flags.Sanitize, "sanitize", false, "Sanitize declaration content")
	AddFlagValidation(cmd, "manifest", ValidateFileExists)
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "Write to this file instead of stdout")
}

// ApplyDeclarations overrides the declarations section with the flags the
// user actually set.
func (f *StandardFlags) ApplyDeclarations(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		flag := cmd.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}
	if changed("manifest") {
		cfg.Declarations.Manifest = f.Manifest
	}
	if changed("subtree") {
		cfg.Declarations.ScanSubtrees = f.Subtree
	}
	if changed("define") {
		cfg.Declarations.Define = f.Define
	}
	if changed("sanitize") {
		cfg.Declarations.Sanitize = f.Sanitize
	}
}

// WriteOutput writes data to the --output file atomically, or to w when no
// file was given.
func (f *StandardFlags) WriteOutput(w io.Writer, data []byte) error {
	if f.Output == "" {
		_, err := w.Write(data)
		return err
	}
	if err := atomic.WriteFile(f.Output, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Output, err)
	}
	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort checks a port flag value.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// ValidateFileExists accepts empty values and existing files.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}

	return nil
}

// ValidateFormat returns a validator accepting one of formats.
func ValidateFormat(formats ...string) func(string) error {
	return func(value string) error {
		for _, format := range formats {
			if strings.EqualFold(value, format) {
				return nil
			}
		}
		return fmt.Errorf("invalid format %q, must be one of: %s", value, strings.Join(formats, ", "))
	}
}
