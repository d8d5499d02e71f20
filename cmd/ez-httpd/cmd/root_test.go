package cmd

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/raphaelreyna/ez-httpd/pkg/config"
)

var setFlagsOnce sync.Once

func resetFlags(t *testing.T) {
	t.Helper()
	setFlagsOnce.Do(SetFlags)
	RootCmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
	})
	configFile, accessLog, scriptTimeout, outputMode, scriptsDir = "", "", "", "", ""
	envVars = nil
}

func TestLoadConfig(t *testing.T) {
	root := t.TempDir()

	type test struct {
		Name  string
		Args  []string
		Flags map[string]string
		Check func(t *testing.T, c *config.Config)
		Error bool
	}

	tt := []test{
		{
			Name: "Port and root",
			Args: []string{"9090", root},
			Check: func(t *testing.T, c *config.Config) {
				if c.Port != 9090 || c.Root != root {
					t.Fatalf("wrong port or root: %d %s", c.Port, c.Root)
				}
				if c.ScriptTimeout != 30*time.Second {
					t.Fatalf("default timeout lost: %v", c.ScriptTimeout)
				}
			},
		},
		{
			Name:  "Bad port",
			Args:  []string{"http", root},
			Error: true,
		},
		{
			Name:  "Port out of range",
			Args:  []string{"70000", root},
			Error: true,
		},
		{
			Name:  "Missing root",
			Args:  []string{"8080", filepath.Join(root, "missing")},
			Error: true,
		},
		{
			Name:  "Only port",
			Args:  []string{"8080"},
			Error: true,
		},
		{
			Name:  "Nothing",
			Error: true,
		},
		{
			Name: "Flags",
			Args: []string{"8080", root},
			Flags: map[string]string{
				"timeout": "2s",
				"output":  "raw",
				"gzip":    "true",
				"env-var": "FOO=bar",
			},
			Check: func(t *testing.T, c *config.Config) {
				if c.ScriptTimeout != 2*time.Second || c.OutputMode != config.OutputRaw || !c.Gzip {
					t.Fatalf("flags not applied: %+v", c)
				}
				if len(c.Env) != 1 || c.Env[0] != "FOO=bar" {
					t.Fatalf("env not applied: %v", c.Env)
				}
			},
		},
		{
			Name:  "Bad output mode",
			Args:  []string{"8080", root},
			Flags: map[string]string{"output": "fancy"},
			Error: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			resetFlags(t)
			for k, v := range tc.Flags {
				if err := RootCmd.Flags().Set(k, v); err != nil {
					t.Fatalf("setting flag %s: %s", k, err)
				}
			}
			c, err := loadConfig(RootCmd, tc.Args)
			if tc.Error {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			tc.Check(t, c)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	resetFlags(t)
	root := t.TempDir()
	path := filepath.Join(t.TempDir(), "ez-httpd.yaml")
	if err := os.WriteFile(path, []byte("port: 7000\nroot: "+root+"\nmax_scripts: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := RootCmd.Flags().Set("config", path); err != nil {
		t.Fatal(err)
	}
	if err := RootCmd.Flags().Set("max-scripts", "5"); err != nil {
		t.Fatal(err)
	}

	c, err := loadConfig(RootCmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.Port != 7000 || c.Root != root {
		t.Fatalf("config file not applied: %+v", c)
	}
	if c.MaxScripts != 5 {
		t.Fatalf("flag should override config file: %d", c.MaxScripts)
	}
}
