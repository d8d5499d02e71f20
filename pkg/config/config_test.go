package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ez-httpd.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
port: 9000
root: `+root+`
script_timeout: 5s
max_scripts: 4
output_mode: cgi
inherit_env: [HOME, LANG]
env:
  - APP_ENV=test
gzip: true
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.Port != 9000 || c.Root != root || c.ScriptTimeout != 5*time.Second || c.MaxScripts != 4 {
		t.Fatalf("values not loaded: %+v", c)
	}
	if !c.Gzip || c.OutputMode != OutputCGI || len(c.InheritEnv) != 2 || c.Env[0] != "APP_ENV=test" {
		t.Fatalf("values not loaded: %+v", c)
	}
	// Untouched keys keep their defaults.
	if c.MaxConnections != Default().MaxConnections || c.ScriptsDir != "scripts" {
		t.Fatalf("defaults lost: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %s", err)
	}
}

func TestLoadEmpty(t *testing.T) {
	c, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.Port != 8080 {
		t.Fatalf("expected default port, received %d", c.Port)
	}
}

func TestLoadUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "prot: 80\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	type test struct {
		Name   string
		Modify func(c *Config)
		Error  string
	}

	tt := []test{
		{Name: "Defaults", Modify: func(c *Config) {}},
		{Name: "Port zero", Modify: func(c *Config) { c.Port = 0 }, Error: "invalid port"},
		{Name: "Port too large", Modify: func(c *Config) { c.Port = 65536 }, Error: "invalid port"},
		{Name: "Missing root", Modify: func(c *Config) { c.Root = filepath.Join(file, "nope") }, Error: "invalid root"},
		{Name: "Root is a file", Modify: func(c *Config) { c.Root = file }, Error: "not a directory"},
		{Name: "No timeout", Modify: func(c *Config) { c.ScriptTimeout = 0 }, Error: "script_timeout"},
		{Name: "No connections", Modify: func(c *Config) { c.MaxConnections = 0 }, Error: "max_connections"},
		{Name: "Bad mode", Modify: func(c *Config) { c.OutputMode = "fancy" }, Error: "unknown output_mode"},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			c := Default()
			c.Root = t.TempDir()
			tc.Modify(c)
			err := c.Validate()
			if tc.Error == "" {
				if err != nil {
					t.Fatalf("unexpected error: %s", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.Error) {
				t.Fatalf("expected error containing %q, received: %v", tc.Error, err)
			}
		})
	}
}
