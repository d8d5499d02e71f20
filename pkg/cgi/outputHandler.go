package cgi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/raphaelreyna/ez-httpd/pkg/header"
)

// Output is a script's response, ready to be written to the HTTP client.
// An Output without any header fields carries only a status; the server
// renders its standard page for it.
type Output struct {
	Status int
	Header header.Fields
	Body   []byte
}

// OutputHandler turns the captured result of a finished script into an Output.
//
// The script does not need to provide any headers, Handler will provide default Header values.
// If the script does provide header values, they will overwrite the default values in Header.
type OutputHandler func(h *Handler, res *Result) *Output

// EZOutputHandler sends the entire output of the script without scanning for headers.
// Responds with 200 unless the script failed.
var EZOutputHandler OutputHandler = func(h *Handler, res *Result) *Output {
	if !res.Success() {
		return h.failure(res)
	}
	return h.withDefaults(http.StatusOK, nil, res.Stdout)
}

// EZOutputHandlerReplacer scans the output of the script for a header block ended by
// the first empty line; its headers replace the default header values and the rest is the body.
// Output without a header block is sent whole as the body.
var EZOutputHandlerReplacer OutputHandler = func(h *Handler, res *Result) *Output {
	lines := splitLines(res.Stdout)
	headerLines, bodyLines, ok := splitHeaderBlock(lines)
	if !ok {
		if !res.Success() {
			return h.failure(res)
		}
		return h.withDefaults(http.StatusOK, nil, []byte(strings.Join(lines, "\n")))
	}

	headers, statusCode := h.parseHeaders(headerLines)
	if statusCode == 0 {
		statusCode = http.StatusOK
		if !res.Success() {
			statusCode = http.StatusInternalServerError
		}
	}
	return h.withDefaults(statusCode, headers, []byte(strings.Join(bodyLines, "\n")))
}

// DefaultOutputHandler *mostly* mimics the behavior of the net/http/cgi package in the Go standard library:
// a header block with a Content-Type (or a Status or Location) is required.
var DefaultOutputHandler OutputHandler = func(h *Handler, res *Result) *Output {
	lines := splitLines(res.Stdout)
	headerLines, bodyLines, ok := splitHeaderBlock(lines)
	if !ok || len(headerLines) == 0 {
		if !res.Success() {
			return h.failure(res)
		}
		h.logErr("cgi: no headers")
		return &Output{Status: http.StatusInternalServerError}
	}

	headers, statusCode := h.parseHeaders(headerLines)
	if _, ok := headers.Get("Location"); ok && statusCode == 0 {
		statusCode = http.StatusFound
	}
	if _, ok := headers.Get("Content-Type"); !ok && statusCode == 0 {
		h.logErr("cgi: missing required Content-Type in headers")
		return &Output{Status: http.StatusInternalServerError}
	}
	if statusCode == 0 {
		statusCode = http.StatusOK
		if !res.Success() {
			statusCode = http.StatusInternalServerError
		}
	}
	return h.withDefaults(statusCode, headers, []byte(strings.Join(bodyLines, "\n")))
}

// parseHeaders reads header lines, pulling out a Status line if there is one.
func (h *Handler) parseHeaders(lines []string) (header.Fields, int) {
	var headers header.Fields
	statusCode := 0
	for _, line := range lines {
		k, v, ok := header.ParseLine(line)
		if !ok {
			h.logErr("cgi: bogus header line: %s", line)
			continue
		}
		switch {
		case strings.EqualFold(k, "Status"):
			if len(v) < 3 {
				h.logErr("cgi: bogus status (short): %q", v)
				continue
			}
			code, err := strconv.Atoi(v[0:3])
			if err != nil || code < 100 {
				h.logErr("cgi: bogus status: %q", v)
				h.logErr("cgi: line was %q", line)
				continue
			}
			statusCode = code
		case strings.EqualFold(k, "Connection"):
			// Every response closes the connection.
		default:
			headers.Set(k, v)
		}
	}
	return headers, statusCode
}

// withDefaults fills in the default headers and Content-Length the script left out.
func (h *Handler) withDefaults(statusCode int, headers header.Fields, body []byte) *Output {
	out := &Output{Status: statusCode, Body: body}
	for _, f := range h.Header {
		if _, ok := headers.Get(f.Key); !ok {
			out.Header.Add(f.Key, f.Value)
		}
	}
	out.Header = append(out.Header, headers...)
	if _, ok := out.Header.Get("Content-Type"); !ok {
		out.Header.Set("Content-Type", "text/plain")
	}
	if _, ok := out.Header.Get("Content-Length"); !ok {
		out.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}
	return out
}

// failure reports a script that exited non-zero without a header block.
func (h *Handler) failure(res *Result) *Output {
	h.logErr("cgi: %s exited with status %d", h.Path, res.ExitCode)
	body := res.Stderr
	if len(body) == 0 {
		body = []byte(fmt.Sprintf("script exited with status %d\n", res.ExitCode))
	}
	out := &Output{Status: http.StatusInternalServerError, Body: body}
	out.Header.Set("Content-Type", "text/plain")
	out.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return out
}

// splitLines splits output on '\n', dropping a trailing '\r' from each line
// and the empty line after a final newline.
func splitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	lines := strings.Split(string(b), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// splitHeaderBlock finds the first empty line. ok is false when there is none,
// or when the first line isn't a header, in which case the output has no header block.
func splitHeaderBlock(lines []string) (headerLines, bodyLines []string, ok bool) {
	for i, line := range lines {
		if line == "" {
			return lines[:i], lines[i+1:], true
		}
		if i == 0 {
			if _, _, isHeader := header.ParseLine(line); !isHeader {
				return nil, nil, false
			}
		}
	}
	return nil, nil, false
}
