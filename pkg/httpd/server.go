// Package httpd is a small HTTP/1.1 server that serves files from a root
// directory and runs executables under its scripts directory as CGI scripts.
// Every connection carries exactly one request.
package httpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/raphaelreyna/ez-httpd/pkg/cgi"
)

// Server serves one request per connection out of Root.
// The zero value of every field except Root is usable.
type Server struct {
	Root       string
	ScriptsDir string
	Name       string // value to use for SERVER_SOFTWARE

	ScriptTimeout time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration

	// MaxConns bounds how many connections are served at once; 0 means no limit.
	MaxConns int
	// MaxScripts bounds how many scripts run at once; 0 means no limit.
	MaxScripts int64

	MaxHeaderBytes int64
	MaxBodyBytes   int64

	OutputHandler cgi.OutputHandler
	InheritEnv    []string
	Env           []string

	// Gzip enables gzip encoding of static files for clients that accept it.
	Gzip bool

	ErrorLog  *log.Logger
	AccessLog *log.Logger

	once    sync.Once
	router  *Router
	scripts *semaphore.Weighted
	port    string
	conns   sync.WaitGroup
}

func (s *Server) init() {
	s.once.Do(func() {
		s.router = &Router{Root: s.Root, ScriptsDir: s.ScriptsDir}
		if s.MaxScripts > 0 {
			s.scripts = semaphore.NewWeighted(s.MaxScripts)
		}
	})
}

func (s *Server) logErr(format string, v ...interface{}) {
	if s.ErrorLog != nil {
		s.ErrorLog.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpd: listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or ln fails, then
// waits for the connections in flight to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.init()
	if _, port, err := net.SplitHostPort(ln.Addr().String()); err == nil {
		s.port = port
	}
	if s.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.MaxConns)
	}

	// Requests already accepted run to completion after ctx is cancelled.
	connCtx := context.WithoutCancel(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					s.logErr("httpd: accept: %v", err)
					time.Sleep(5 * time.Millisecond)
					continue
				}
				return fmt.Errorf("httpd: accept: %w", err)
			}
			s.conns.Add(1)
			go func() {
				defer s.conns.Done()
				s.ServeConn(connCtx, conn)
			}()
		}
	})

	err := g.Wait()
	s.conns.Wait()
	return err
}

// ServeConn reads one request from conn, answers it and closes conn.
// Nothing that goes wrong here reaches other connections.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	s.init()
	start := time.Now()
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.logErr("httpd: panic serving %s: %v\n%s", conn.RemoteAddr(), r, debug.Stack())
		}
	}()

	if s.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}
	req, err := ReadRequest(bufio.NewReader(conn), s.MaxHeaderBytes, s.MaxBodyBytes)

	var resp *Response
	switch {
	case err == io.EOF:
		return
	case err != nil:
		var e *Error
		if !errors.As(err, &e) || e.Status == 0 {
			s.logErr("httpd: reading request from %s: %v", conn.RemoteAddr(), err)
			return
		}
		s.logErr("httpd: %s: %v", conn.RemoteAddr(), err)
		resp = errorResponse(e.Status)
		if req == nil {
			req = &Request{}
		}
	default:
		req.RemoteAddr = conn.RemoteAddr().String()
		resp, err = s.Handle(ctx, req)
		if err != nil && resp.StatusCode >= http.StatusInternalServerError {
			s.logErr("httpd: %s %s: %v", req.Method, req.Path, err)
		}
	}

	if s.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}
	n, err := resp.WriteTo(conn)
	if err != nil {
		s.logErr("httpd: writing response to %s: %v", conn.RemoteAddr(), err)
	}
	s.logAccess(conn.RemoteAddr(), req, resp.StatusCode, n, time.Since(start))
}

func (s *Server) logAccess(remote net.Addr, req *Request, status int, n int64, d time.Duration) {
	if s.AccessLog == nil {
		return
	}
	s.AccessLog.Printf("%s %q %d %d %v", remote, req.Method+" "+req.Path, status, n, d.Round(time.Microsecond))
}

// Handle routes req and builds its response. The response is never nil;
// the error, if any, explains why the response isn't a 200.
func (s *Server) Handle(ctx context.Context, req *Request) (*Response, error) {
	s.init()
	route := s.router.Route(req.Method, req.Path)
	switch route.Kind {
	case ForbiddenRoute:
		return errorResponse(http.StatusForbidden), newError(RouteError, http.StatusForbidden, fmt.Errorf("%s is forbidden", req.Path))
	case MethodNotAllowedRoute:
		return errorResponse(http.StatusMethodNotAllowed), newError(RouteError, http.StatusMethodNotAllowed, fmt.Errorf("method %q", req.Method))
	case StaticRoute:
		return s.serveStatic(req, route.File)
	case ScriptRoute:
		return s.serveScript(ctx, req, route.File)
	default:
		return errorResponse(http.StatusNotFound), newError(NotFound, http.StatusNotFound, fmt.Errorf("%s", req.Path))
	}
}

func (s *Server) serveStatic(req *Request, file string) (*Response, error) {
	body, err := os.ReadFile(file)
	if err != nil {
		return errorResponse(http.StatusInternalServerError), newError(IOError, http.StatusInternalServerError, err)
	}

	resp := &Response{StatusCode: http.StatusOK}
	resp.Header.Set("Content-Type", ContentType(file))
	if s.Gzip && acceptsGzip(req) {
		zipped, err := gzipBytes(body)
		if err != nil {
			return errorResponse(http.StatusInternalServerError), newError(IOError, http.StatusInternalServerError, err)
		}
		body = zipped
		resp.Header.Set("Content-Encoding", "gzip")
	}
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.Body = body
	return resp, nil
}

func (s *Server) serveScript(ctx context.Context, req *Request, file string) (*Response, error) {
	if s.scripts != nil {
		if err := s.scripts.Acquire(ctx, 1); err != nil {
			return errorResponse(http.StatusInternalServerError), newError(ExecutionError, http.StatusInternalServerError, err)
		}
		defer s.scripts.Release(1)
	}

	var stderr io.Writer = os.Stderr
	if s.ErrorLog != nil {
		stderr = s.ErrorLog.Writer()
	}
	h := &cgi.Handler{
		Path:          file,
		Root:          s.Root,
		Name:          s.Name,
		Port:          s.port,
		InheritEnv:    s.InheritEnv,
		Env:           s.Env,
		Logger:        s.ErrorLog,
		Stderr:        stderr,
		Timeout:       s.ScriptTimeout,
		OutputHandler: s.OutputHandler,
	}
	out, err := h.Serve(ctx, &cgi.Request{
		Method:     req.Method,
		Path:       req.Path,
		RawQuery:   req.Query,
		Header:     req.Header,
		Body:       req.Body,
		RemoteAddr: req.RemoteAddr,
	})
	switch {
	case errors.Is(err, cgi.ErrTimeout):
		return errorResponse(http.StatusGatewayTimeout), newError(ExecutionError, http.StatusGatewayTimeout, err)
	case err != nil:
		return errorResponse(http.StatusInternalServerError), newError(ExecutionError, http.StatusInternalServerError, err)
	}

	if len(out.Header) == 0 {
		return errorResponse(out.Status), nil
	}
	return &Response{StatusCode: out.Status, Header: out.Header, Body: out.Body}, nil
}
