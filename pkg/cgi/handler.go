// Much of the environment handling follows the Go standard library: https://golang.org/src/net/http/cgi/host.go
package cgi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelreyna/ez-httpd/pkg/header"
)

var portRegex = regexp.MustCompile(`:([0-9]+)$`)

var osDefaultInheritEnv = map[string][]string{
	"darwin":  {"DYLD_LIBRARY_PATH"},
	"freebsd": {"LD_LIBRARY_PATH"},
	"hpux":    {"LD_LIBRARY_PATH", "SHLIB_PATH"},
	"irix":    {"LD_LIBRARY_PATH", "LD_LIBRARYN32_PATH", "LD_LIBRARY64_PATH"},
	"linux":   {"LD_LIBRARY_PATH"},
	"openbsd": {"LD_LIBRARY_PATH"},
	"solaris": {"LD_LIBRARY_PATH", "LD_LIBRARY_PATH_32", "LD_LIBRARY_PATH_64"},
	"windows": {"SystemRoot", "COMSPEC", "PATHEXT", "WINDIR"},
}

var (
	// ErrSpawn is returned when the script could not be started at all.
	ErrSpawn = errors.New("cgi: could not start script")
	// ErrTimeout is returned when the script outlived Handler.Timeout.
	ErrTimeout = errors.New("cgi: script timed out")
)

// Request is the part of an HTTP request a script gets to see.
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	Header     header.Fields
	Body       []byte
	RemoteAddr string
}

// Result is what a finished script left behind.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Success reports whether the script exited with status 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Handler runs an executable in a subprocess with an almost CGI environment.
// The executable does not need to provide any headers, Handler will provide default Header values.
// If the executable does provide header values, they will overwrite the default values in Header.
type Handler struct {
	Path string // script to run
	Root string // value to use for DOCUMENT_ROOT

	Name string // value to use for SERVER_SOFTWARE env var
	Port string

	// Dir is the working directory of the script. Defaults to the script's own directory.
	Dir string

	InheritEnv []string
	Env        []string // extra KEY=VALUE pairs
	Logger     *log.Logger
	Args       []string
	Stderr     io.Writer

	// Timeout bounds a single run. The script's whole process group is killed on expiry.
	Timeout time.Duration

	// Header contains header values that should be used by default.
	// If the script writes a header to its stdout thats already in Header, it will be replaced.
	Header header.Fields

	OutputHandler OutputHandler
}

func (h *Handler) logErr(format string, v ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

func (h *Handler) setDefaults() {
	if h.Name == "" {
		h.Name = "ez-httpd"
	}
	if h.Port == "" {
		h.Port = "80"
	}
	if h.Header == nil {
		h.Header = header.Fields{
			{Key: "Content-Type", Value: "text/plain"},
		}
	}
	if h.OutputHandler == nil {
		h.OutputHandler = EZOutputHandlerReplacer
	}
}

// Serve runs the script for r and translates what it printed into an Output.
// The only errors returned wrap ErrSpawn, ErrTimeout or a cancelled ctx; a script
// that ran and failed is reported through the Output instead.
func (h *Handler) Serve(ctx context.Context, r *Request) (*Output, error) {
	h.setDefaults()
	res, err := h.Run(ctx, r)
	if err != nil {
		return nil, err
	}
	return h.OutputHandler(h, res), nil
}

// Run starts the script, feeds it the request body on stdin for POST requests
// and waits for it to exit.
func (h *Handler) Run(ctx context.Context, r *Request) (*Result, error) {
	h.setDefaults()

	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	path, err := filepath.Abs(h.Path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrSpawn, h.Path, err)
	}
	cwd := h.Dir
	if cwd == "" {
		cwd = filepath.Dir(path)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, h.Args...)
	cmd.Dir = cwd
	cmd.Env = h.env(r)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if h.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, h.Stderr)
	}
	if r.Method == "POST" && len(r.Body) > 0 {
		cmd.Stdin = bytes.NewReader(r.Body)
	}
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrSpawn, h.Path, err)
	}
	err = cmd.Wait()

	res := &Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: %s after %v", ErrTimeout, h.Path, h.Timeout)
		}
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay):
		// Something outside the process group kept a pipe open.
		h.logErr("cgi: %s: %v", h.Path, err)
		res.ExitCode = cmd.ProcessState.ExitCode()
	default:
		return res, fmt.Errorf("cgi: waiting for %s: %w", h.Path, err)
	}
	return res, nil
}

func (h *Handler) env(r *Request) []string {
	port := h.Port
	host, _ := r.Header.Get("Host")
	if matches := portRegex.FindStringSubmatch(host); len(matches) != 0 {
		port = matches[1]
	}

	env := []string{
		"SERVER_SOFTWARE=" + h.Name,
		"SERVER_NAME=" + host,
		"SERVER_PROTOCOL=HTTP/1.1",
		"HTTP_HOST=" + host,
		"GATEWAY_INTERFACE=CGI/1.1",
		"REQUEST_METHOD=" + r.Method,
		"QUERY_STRING=" + r.RawQuery,
		"REQUEST_URI=" + requestURI(r),
		"PATH_INFO=" + r.Path,
		"SCRIPT_NAME=" + r.Path,
		"SCRIPT_FILENAME=" + h.Path,
		"SERVER_PORT=" + port,
	}
	if h.Root != "" {
		env = append(env, "DOCUMENT_ROOT="+h.Root)
	}

	if remoteIP, remotePort, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		env = append(env, "REMOTE_ADDR="+remoteIP, "REMOTE_HOST="+remoteIP, "REMOTE_PORT="+remotePort)
	} else if r.RemoteAddr != "" {
		env = append(env, "REMOTE_ADDR="+r.RemoteAddr, "REMOTE_HOST="+r.RemoteAddr)
	}

	var keys []string
	values := make(map[string][]string)
	for _, f := range r.Header {
		k := strings.Map(upperCaseAndUnderscore, f.Key)
		if k == "PROXY" || k == "HOST" {
			continue
		}
		if _, ok := values[k]; !ok {
			keys = append(keys, k)
		}
		values[k] = append(values[k], f.Value)
	}
	for _, k := range keys {
		joinStr := ", "
		if k == "COOKIE" {
			joinStr = "; "
		}
		env = append(env, "HTTP_"+k+"="+strings.Join(values[k], joinStr))
	}

	if len(r.Body) > 0 {
		env = append(env, "CONTENT_LENGTH="+strconv.Itoa(len(r.Body)))
	}
	if ctype, ok := r.Header.Get("Content-Type"); ok && ctype != "" {
		env = append(env, "CONTENT_TYPE="+ctype)
	}

	envPath := os.Getenv("PATH")
	if envPath == "" {
		envPath = "/bin:/usr/bin:/usr/ucb:/usr/bsd:/usr/local/bin"
	}
	env = append(env, "PATH="+envPath)

	for _, e := range h.InheritEnv {
		if v := os.Getenv(e); v != "" {
			env = append(env, e+"="+v)
		}
	}
	for _, e := range osDefaultInheritEnv[runtime.GOOS] {
		if v := os.Getenv(e); v != "" {
			env = append(env, e+"="+v)
		}
	}
	env = append(env, h.Env...)

	// Simple names scripts written against this server rely on.
	env = append(env, "Method="+r.Method, "Path="+r.Path)
	env = append(env, queryEnv(r.RawQuery)...)

	return removeLeadingDuplicates(env)
}

func requestURI(r *Request) string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

// queryEnv turns a raw query string into one Query_<key>=<value> entry per
// '&'-separated pair. A pair without '=' gets an empty value.
func queryEnv(rawQuery string) []string {
	var env []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		k = strings.ReplaceAll(unescape(k), "=", "_")
		if k == "" {
			continue
		}
		env = append(env, "Query_"+k+"="+unescape(v))
	}
	return env
}

// unescape decodes s as a query component, falling back to s itself when it
// isn't valid percent-encoding. NUL bytes can't be passed in an environment.
func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		s = u
	}
	return strings.ReplaceAll(s, "\x00", "")
}

func removeLeadingDuplicates(env []string) (ret []string) {
	for i, e := range env {
		found := false
		if eq := strings.IndexByte(e, '='); eq != -1 {
			keq := e[:eq+1]
			for _, e2 := range env[i+1:] {
				if strings.HasPrefix(e2, keq) {
					found = true
					break
				}
			}
		}
		if !found {
			ret = append(ret, e)
		}
	}
	return
}

func upperCaseAndUnderscore(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return r - ('a' - 'A')
	case r == '-':
		return '_'
	case r == '=':
		return '_'
	}
	return r
}
