// Package config loads ez-httpd settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raphaelreyna/ez-httpd/pkg/cgi"
	"github.com/raphaelreyna/ez-httpd/pkg/httpd"
)

// Output modes select how script output is turned into a response.
const (
	OutputLenient = "lenient"
	OutputRaw     = "raw"
	OutputCGI     = "cgi"
)

type Config struct {
	Port       int    `yaml:"port"`
	Root       string `yaml:"root"`
	ScriptsDir string `yaml:"scripts_dir"`

	ScriptTimeout time.Duration `yaml:"script_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`

	MaxConnections int   `yaml:"max_connections"`
	MaxScripts     int64 `yaml:"max_scripts"`
	MaxHeaderBytes int64 `yaml:"max_header_bytes"`
	MaxBodyBytes   int64 `yaml:"max_body_bytes"`

	OutputMode string   `yaml:"output_mode"`
	InheritEnv []string `yaml:"inherit_env"`
	Env        []string `yaml:"env"`

	Gzip      bool   `yaml:"gzip"`
	AccessLog string `yaml:"access_log"`
	Quiet     bool   `yaml:"quiet"`
}

// Default returns the settings used when nothing else is given.
func Default() *Config {
	return &Config{
		Port:           8080,
		Root:           ".",
		ScriptsDir:     httpd.DefaultScriptsDir,
		ScriptTimeout:  30 * time.Second,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxConnections: 256,
		MaxScripts:     32,
		MaxHeaderBytes: httpd.DefaultMaxHeaderBytes,
		MaxBodyBytes:   httpd.DefaultMaxBodyBytes,
		OutputMode:     OutputLenient,
	}
}

// Load reads filename over the defaults. Unknown keys are an error.
func Load(filename string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", filename, err)
	}
	return c, nil
}

// Validate checks that the server can start with c.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid root %s: not a directory", c.Root)
	}
	switch {
	case c.ScriptTimeout <= 0:
		return errors.New("script_timeout must be positive")
	case c.ReadTimeout < 0, c.WriteTimeout < 0:
		return errors.New("read_timeout and write_timeout can't be negative")
	case c.MaxConnections <= 0:
		return errors.New("max_connections must be positive")
	case c.MaxScripts <= 0:
		return errors.New("max_scripts must be positive")
	case c.MaxHeaderBytes <= 0, c.MaxBodyBytes <= 0:
		return errors.New("max_header_bytes and max_body_bytes must be positive")
	}
	if _, err := c.OutputHandler(); err != nil {
		return err
	}
	return nil
}

// OutputHandler returns the script output handler named by OutputMode.
func (c *Config) OutputHandler() (cgi.OutputHandler, error) {
	switch c.OutputMode {
	case "", OutputLenient:
		return cgi.EZOutputHandlerReplacer, nil
	case OutputRaw:
		return cgi.EZOutputHandler, nil
	case OutputCGI:
		return cgi.DefaultOutputHandler, nil
	}
	return nil, fmt.Errorf("unknown output_mode %q: expected %s, %s or %s", c.OutputMode, OutputLenient, OutputRaw, OutputCGI)
}
