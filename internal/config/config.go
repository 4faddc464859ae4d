// Package config provides configuration management for shroot using Viper
// for loading from files, environment variables, and command-line flags.
//
// Configuration is read from .shroot.yml (or the file named by --config or
// SHROOT_CONFIG_FILE), with SHROOT_<SECTION>_<OPTION> environment overrides.
// It covers the dev server, the page directory, declaration recognition,
// behavior loading, logging and development options.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	shrooterrors "github.com/conneroisu/shroot/internal/errors"
	"github.com/conneroisu/shroot/internal/logging"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHROOT"

type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Pages        PagesConfig        `mapstructure:"pages" yaml:"pages"`
	Declarations DeclarationsConfig `mapstructure:"declarations" yaml:"declarations"`
	Behaviors    BehaviorsConfig    `mapstructure:"behaviors" yaml:"behaviors"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Development  DevelopmentConfig  `mapstructure:"development" yaml:"development"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	Host           string   `mapstructure:"host" yaml:"host"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type PagesConfig struct {
	Dir        string   `mapstructure:"dir" yaml:"dir"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Exclude    []string `mapstructure:"exclude" yaml:"exclude"`
}

// DeclarationsConfig controls how declarations are recognized.
type DeclarationsConfig struct {
	ModeAttr     string `mapstructure:"mode_attr" yaml:"mode_attr"`
	TypeAttr     string `mapstructure:"type_attr" yaml:"type_attr"`
	BehaviorAttr string `mapstructure:"behavior_attr" yaml:"behavior_attr"`
	// Define also recognizes <define name="..."> blocks.
	Define       bool   `mapstructure:"define" yaml:"define"`
	Sanitize     bool   `mapstructure:"sanitize" yaml:"sanitize"`
	AllowStyles  bool   `mapstructure:"allow_styles" yaml:"allow_styles"`
	ScanSubtrees bool   `mapstructure:"scan_subtrees" yaml:"scan_subtrees"`
	Manifest     string `mapstructure:"manifest" yaml:"manifest"`
}

type BehaviorsConfig struct {
	Dir         string        `mapstructure:"dir" yaml:"dir"`
	LoadTimeout time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	// Delay simulates slow behavior loading.
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

type DevelopmentConfig struct {
	HotReload    bool          `mapstructure:"hot_reload" yaml:"hot_reload"`
	ErrorOverlay bool          `mapstructure:"error_overlay" yaml:"error_overlay"`
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// SetDefaults registers every key with its default so environment
// overrides apply even when no file sets the key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("pages.dir", "./pages")
	v.SetDefault("pages.extensions", []string{".html", ".htm"})
	v.SetDefault("pages.exclude", []string{"*.bak", ".*"})

	v.SetDefault("declarations.mode_attr", "sri-mode")
	v.SetDefault("declarations.type_attr", "sri-tagname")
	v.SetDefault("declarations.behavior_attr", "sri-behavior")
	v.SetDefault("declarations.define", false)
	v.SetDefault("declarations.sanitize", false)
	v.SetDefault("declarations.allow_styles", false)
	v.SetDefault("declarations.scan_subtrees", false)
	v.SetDefault("declarations.manifest", "")

	v.SetDefault("behaviors.dir", "")
	v.SetDefault("behaviors.load_timeout", 5*time.Second)
	v.SetDefault("behaviors.delay", time.Duration(0))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.dir", "")

	v.SetDefault("development.hot_reload", true)
	v.SetDefault("development.error_overlay", true)
	v.SetDefault("development.debounce", 100*time.Millisecond)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, shrooterrors.NewConfigError(shrooterrors.ErrCodeConfigInvalid, "decode configuration: "+err.Error())
	}

	// Viper hands back comma separated env values as one string.
	config.Pages.Extensions = splitList(config.Pages.Extensions)
	config.Pages.Exclude = splitList(config.Pages.Exclude)
	config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins)

	for i, ext := range config.Pages.Extensions {
		if !strings.HasPrefix(ext, ".") {
			config.Pages.Extensions[i] = "." + ext
		}
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate checks every section and reports all problems at once.
func Validate(config *Config) error {
	var errs shrooterrors.ValidationErrorCollection

	if config.Server.Port < 0 || config.Server.Port > 65535 {
		errs.AddField("server.port", config.Server.Port, "port must be in range 0-65535")
	}
	if strings.ContainsAny(config.Server.Host, ";&|$`()<>\"'\\ ") {
		errs.AddField("server.host", config.Server.Host, "host contains invalid characters")
	}

	if err := validatePath(config.Pages.Dir); err != nil {
		errs.AddField("pages.dir", config.Pages.Dir, err.Error())
	}
	if len(config.Pages.Extensions) == 0 {
		errs.AddField("pages.extensions", config.Pages.Extensions, "at least one page extension is required", ".html")
	}

	d := config.Declarations
	if d.ModeAttr == "" || d.TypeAttr == "" {
		errs.AddField("declarations", d, "mode_attr and type_attr are required")
	} else if d.ModeAttr == d.TypeAttr || d.ModeAttr == d.BehaviorAttr || d.TypeAttr == d.BehaviorAttr {
		errs.AddField("declarations", d, "marker attributes must be distinct")
	}
	if d.Manifest != "" {
		if err := validatePath(d.Manifest); err != nil {
			errs.AddField("declarations.manifest", d.Manifest, err.Error())
		}
	}

	if config.Behaviors.Dir != "" {
		if err := validatePath(config.Behaviors.Dir); err != nil {
			errs.AddField("behaviors.dir", config.Behaviors.Dir, err.Error())
		}
	}
	if config.Behaviors.LoadTimeout < 0 {
		errs.AddField("behaviors.load_timeout", config.Behaviors.LoadTimeout, "timeout must not be negative")
	}
	if config.Behaviors.Delay < 0 {
		errs.AddField("behaviors.delay", config.Behaviors.Delay, "delay must not be negative")
	}

	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		errs.AddField("logging.level", config.Logging.Level, err.Error(), "debug", "info", "warn", "error")
	}
	switch strings.ToLower(config.Logging.Format) {
	case "text", "json":
	default:
		errs.AddField("logging.format", config.Logging.Format, "format must be text or json")
	}

	if config.Development.Debounce < 0 {
		errs.AddField("development.debounce", config.Development.Debounce, "debounce must not be negative")
	}

	if errs.HasErrors() {
		return errs.ToShrootError()
	}
	return nil
}

// validatePath rejects traversal and shell metacharacters.
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}
	cleanPath := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if part == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}
	if strings.ContainsAny(cleanPath, ";&|$`<>\"'") {
		return fmt.Errorf("path contains dangerous characters: %s", path)
	}
	return nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
