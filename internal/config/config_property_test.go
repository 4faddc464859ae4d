//go:build property
// +build property

package config

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid ports and hosts always load", prop.ForAll(
		func(port int, host string, dir string) bool {
			v := viper.New()
			v.Set("server.port", port)
			v.Set("server.host", host)
			v.Set("pages.dir", "./"+dir)
			cfg, err := LoadFrom(v)
			return err == nil && cfg.Server.Port == port && cfg.Server.Host == host
		},
		gen.IntRange(0, 65535),
		gen.RegexMatch(`^[a-zA-Z0-9.-]{1,30}$`),
		gen.RegexMatch(`^[a-zA-Z0-9_/]{1,20}$`),
	))

	properties.Property("ports outside the range are rejected", prop.ForAll(
		func(port int) bool {
			v := viper.New()
			v.Set("server.port", port)
			_, err := LoadFrom(v)
			return (port >= 0 && port <= 65535) == (err == nil)
		},
		gen.IntRange(-1000, 70000),
	))

	properties.Property("traversal is always rejected", prop.ForAll(
		func(prefix string, depth int) bool {
			path := prefix
			for i := 0; i < depth; i++ {
				path = fmt.Sprintf("../%s", path)
			}
			return validatePath(path) != nil
		},
		gen.RegexMatch(`^[a-z]{1,10}$`),
		gen.IntRange(1, 5),
	))

	properties.Property("defaults are valid", prop.ForAll(
		func() bool {
			_, err := LoadFrom(viper.New())
			return err == nil
		},
	))

	properties.TestingRun(t)
}
