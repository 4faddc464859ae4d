package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

// FuzzLoadConfig feeds arbitrary YAML through the loader. It must either
// load a valid configuration or fail cleanly.
func FuzzLoadConfig(f *testing.F) {
	f.Add(`server:
  port: 8080
  host: localhost
pages:
  dir: ./pages`)
	f.Add(`server:
  port: "invalid_port"`)
	f.Add(`server:
  port: 65536`)
	f.Add(`declarations:
  mode_attr: x
  type_attr: x`)
	f.Add(`behaviors:
  load_timeout: forever`)
	f.Add(`malformed: yaml: content`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, content string) {
		if len(content) > 10000 {
			t.Skip()
		}
		path := filepath.Join(t.TempDir(), ".shroot.yml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return
		}
		cfg, err := LoadFrom(v)
		if err != nil {
			return
		}
		if err := Validate(cfg); err != nil {
			t.Errorf("loaded configuration does not validate: %v", err)
		}
		if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
			t.Errorf("port %d escaped validation", cfg.Server.Port)
		}
	})
}
