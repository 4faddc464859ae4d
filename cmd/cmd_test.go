package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conneroisu/shroot/internal/config"
	"github.com/conneroisu/shroot/internal/manifest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const declaringPage = `<!DOCTYPE html><html><head><title>t</title></head><body>
<template sri-mode="open" sri-tagname="greeting-box"><p>Hi</p></template>
<template sri-mode="closed" sri-tagname="x-secret"><i>s</i></template>
<greeting-box></greeting-box><greeting-box></greeting-box><x-secret></x-secret>
</body></html>`

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExpand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "index.html", declaringPage)

	stdout, _, err := execute(t, "", "expand", path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(stdout, `<greeting-box><template shadowrootmode="open"><p>Hi</p></template></greeting-box>`))
	assert.Contains(t, stdout, `<x-secret><template shadowrootmode="closed"><i>s</i></template></x-secret>`)
}

func TestExpand_Stdin(t *testing.T) {
	stdout, _, err := execute(t, declaringPage, "expand", "-")
	require.NoError(t, err)
	assert.Contains(t, stdout, `<greeting-box><template shadowrootmode="open">`)
}

func TestExpand_OutputFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "index.html", declaringPage)
	out := filepath.Join(dir, "dist.html")

	stdout, _, err := execute(t, "", "expand", path, "-o", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `shadowrootmode="open"`)
}

func TestExpand_Strict(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.html", `<html><body>
<template sri-mode="open" sri-tagname="x-broken" sri-behavior="does-not-exist"><p>b</p></template>
<x-broken></x-broken></body></html>`)

	stdout, stderr, err := execute(t, "", "expand", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, `<x-broken></x-broken>`)
	assert.Contains(t, stderr, "warning: [ERR_BEHAVIOR_LOAD]")

	_, _, err = execute(t, "", "expand", path, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 issue(s)")
}

func TestExpand_MissingFile(t *testing.T) {
	_, _, err := execute(t, "", "expand", filepath.Join(t.TempDir(), "nope.html"))
	assert.Error(t, err)
}

func TestList_Table(t *testing.T) {
	path := writeFile(t, t.TempDir(), "index.html", declaringPage)

	stdout, _, err := execute(t, "", "list", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^TYPE\s+MODE\s+BEHAVIOR\s+INSTANCES\s+USES$`, lines[0])
	assert.Regexp(t, `^greeting-box\s+open\s+-\s+2\s+-$`, lines[1])
	assert.Regexp(t, `^x-secret\s+closed\s+-\s+1\s+-$`, lines[2])
}

func TestList_Formats(t *testing.T) {
	path := writeFile(t, t.TempDir(), "index.html", declaringPage)

	for _, format := range []string{"json", "yaml", "toml"} {
		t.Run(format, func(t *testing.T) {
			stdout, _, err := execute(t, "", "list", path, "-f", format)
			require.NoError(t, err)

			f, err := manifest.ParseFormat(format)
			require.NoError(t, err)
			m, err := manifest.Decode(strings.NewReader(stdout), f)
			require.NoError(t, err)
			require.Len(t, m.Components, 2)
			assert.Equal(t, "greeting-box", m.Components[0].TypeID)
			assert.Equal(t, 2, m.Components[0].Instances)
		})
	}

	_, _, err := execute(t, "", "list", path, "-f", "xml")
	assert.Error(t, err)
}

func TestList_ManifestRoundTripIntoExpand(t *testing.T) {
	dir := t.TempDir()
	source := writeFile(t, dir, "components.html", declaringPage)
	usage := writeFile(t, dir, "usage.html", `<html><body><greeting-box></greeting-box></body></html>`)
	m := filepath.Join(dir, "components.mp")

	_, _, err := execute(t, "", "list", source, "-f", "msgpack", "-o", m)
	require.NoError(t, err)
	require.FileExists(t, m)

	stdout, _, err := execute(t, "", "expand", usage)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "shadowrootmode")

	stdout, _, err = execute(t, "", "expand", usage, "--manifest", m)
	require.NoError(t, err)
	assert.Contains(t, stdout, `<greeting-box><template shadowrootmode="open"><p>Hi</p></template></greeting-box>`)

	_, _, err = execute(t, "", "expand", usage, "--manifest", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "", "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	stdout, _, err = execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "shroot "))

	_, _, err = execute(t, "", "version", "--format", "xml")
	assert.Error(t, err)
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"8080", false},
		{"0", false},
		{"65535", false},
		{"65536", true},
		{"-1", true},
		{"http", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := ValidatePort(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFormat(t *testing.T) {
	validate := ValidateFormat("table", "json")
	assert.NoError(t, validate("JSON"))
	assert.NoError(t, validate("table"))
	err := validate("csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table, json")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := newLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info(context.Background(), "hello", "k", "v")
	require.NoError(t, closeLog())
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	dir := t.TempDir()
	logger, closeLog, err = newLogger(config.LoggingConfig{Level: "info", Format: "text", Dir: dir}, &buf)
	require.NoError(t, err)
	logger.Info(context.Background(), "to file")
	require.NoError(t, closeLog())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")

	_, _, err = newLogger(config.LoggingConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}
