package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelreyna/ez-httpd/pkg/config"
)

var version string

var (
	configFile string

	noError   bool
	accessLog string

	scriptsDir    string
	scriptTimeout string
	outputMode    string
	maxConns      int
	maxScripts    int64
	maxBody       int64
	gzip          bool

	envVars []string
)

var RootCmd = &cobra.Command{
	Use:     "ez-httpd [flags]... port root",
	Version: version,
	Short:   "A small HTTP server for static files and (almost-)CGI scripts.",
	Long: `Start an HTTP server that serves the files under root.
Executable files under root/scripts/ are run on each request and their output is sent back.
Scripts may start their output with a header block ('Key: Value' lines and a blank line);
without one, the whole output is sent as text/plain.
Every response closes the connection.
`,
	Args:          cobra.RangeArgs(0, 2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func SetFlags() {
	RootCmd.Flags().StringVarP(&configFile, "config", "c", "", `YAML configuration file.
Flags and arguments override values from the file.`,
	)

	RootCmd.Flags().BoolVarP(&noError, "quiet", "q", false,
		`Don't show error messages.`,
	)
	RootCmd.Flags().StringVar(&accessLog, "access-log", "", `Where to write the access log. Use '-' for standard output.`)

	RootCmd.Flags().StringVar(&scriptsDir, "scripts-dir", "", `Directory under root whose executables are run as scripts (default "scripts").`)
	RootCmd.Flags().StringVarP(&scriptTimeout, "timeout", "t", "", `How long a script may run before it is killed, e.g. 30s.`)
	RootCmd.Flags().StringVarP(&outputMode, "output", "o", "", `How script output is read: lenient, raw or cgi.
lenient: an optional header block followed by the body (default).
raw: the whole output is the body.
cgi: a header block with Content-Type is required.`,
	)
	RootCmd.Flags().IntVar(&maxConns, "max-connections", 0, `Maximum number of connections served at once.`)
	RootCmd.Flags().Int64Var(&maxScripts, "max-scripts", 0, `Maximum number of scripts running at once.`)
	RootCmd.Flags().Int64Var(&maxBody, "max-body", 0, `Maximum request body size in bytes.`)
	RootCmd.Flags().BoolVarP(&gzip, "gzip", "z", false, `Gzip static files for clients that accept it.`)

	RootCmd.Flags().StringArrayVarP(&envVars, "env-var", "e", nil, `Environment variable to pass on to scripts.
Must be in the form 'KEY=VALUE', or 'KEY' to inherit it from ez-httpd's environment.`,
	)
}

// loadConfig layers defaults, the config file, flags and arguments.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	c := config.Default()
	if configFile != "" {
		var err error
		if c, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}

	switch len(args) {
	case 2:
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		c.Port = port
		c.Root = args[1]
	case 1:
		return nil, errors.New("both port and root are required")
	case 0:
		if configFile == "" {
			return nil, errors.New("port and root are required unless --config is given")
		}
	}

	flags := cmd.Flags()
	if flags.Changed("quiet") {
		c.Quiet = noError
	}
	if flags.Changed("access-log") {
		c.AccessLog = accessLog
	}
	if flags.Changed("scripts-dir") {
		c.ScriptsDir = scriptsDir
	}
	if flags.Changed("timeout") {
		d, err := parseDuration(scriptTimeout)
		if err != nil {
			return nil, err
		}
		c.ScriptTimeout = d
	}
	if flags.Changed("output") {
		c.OutputMode = outputMode
	}
	if flags.Changed("max-connections") {
		c.MaxConnections = maxConns
	}
	if flags.Changed("max-scripts") {
		c.MaxScripts = maxScripts
	}
	if flags.Changed("max-body") {
		c.MaxBodyBytes = maxBody
	}
	if flags.Changed("gzip") {
		c.Gzip = gzip
	}
	for _, e := range envVars {
		if strings.Contains(e, "=") {
			c.Env = append(c.Env, e)
		} else {
			c.InheritEnv = append(c.InheritEnv, e)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func run(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	s, closeLogs, err := newServer(c)
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	addr := ":" + strconv.Itoa(c.Port)
	log.Printf("serving %s on %s", c.Root, addr)
	if err := s.ListenAndServe(ctx, addr); err != nil {
		return err
	}
	log.Println("shut down")
	return nil
}

func Execute() {
	SetFlags()
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
