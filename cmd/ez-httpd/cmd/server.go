package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/raphaelreyna/ez-httpd/pkg/config"
	"github.com/raphaelreyna/ez-httpd/pkg/httpd"
)

// newServer builds an httpd.Server from c. The returned func closes the
// access log file, if one was opened.
func newServer(c *config.Config) (*httpd.Server, func(), error) {
	outputHandler, err := c.OutputHandler()
	if err != nil {
		return nil, nil, err
	}

	s := &httpd.Server{
		Root:           c.Root,
		ScriptsDir:     c.ScriptsDir,
		Name:           "ez-httpd/" + versionString(),
		ScriptTimeout:  c.ScriptTimeout,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		MaxConns:       c.MaxConnections,
		MaxScripts:     c.MaxScripts,
		MaxHeaderBytes: c.MaxHeaderBytes,
		MaxBodyBytes:   c.MaxBodyBytes,
		OutputHandler:  outputHandler,
		InheritEnv:     c.InheritEnv,
		Env:            c.Env,
		Gzip:           c.Gzip,
	}

	if c.Quiet {
		s.ErrorLog = log.New(io.Discard, "", 0)
	} else {
		s.ErrorLog = log.New(os.Stderr, "error :: ", log.LstdFlags)
	}

	closeLogs := func() {}
	switch c.AccessLog {
	case "":
	case "-":
		s.AccessLog = log.New(os.Stdout, "", log.LstdFlags)
	default:
		f, err := os.OpenFile(c.AccessLog, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open access log file (%s): %w", c.AccessLog, err)
		}
		s.AccessLog = log.New(f, "", log.LstdFlags)
		closeLogs = func() { f.Close() }
	}

	return s, closeLogs, nil
}

func versionString() string {
	if version == "" {
		return "dev"
	}
	return version
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
