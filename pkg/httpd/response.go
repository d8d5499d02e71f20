package httpd

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/raphaelreyna/ez-httpd/pkg/header"
)

var errorTemplate = template.Must(template.New("").Parse(`<html><body><h1>{{.}}</h1></body></html>`))

// Response is a complete HTTP response, written once and then discarded.
type Response struct {
	StatusCode int
	Header     header.Fields
	Body       []byte
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}

// errorResponse builds the fixed page every non-200 status without a body of its own gets.
func errorResponse(code int) *Response {
	status := fmt.Sprintf("%d %s", code, statusText(code))
	var buf bytes.Buffer
	if err := errorTemplate.Execute(&buf, status); err != nil {
		buf.Reset()
		buf.WriteString(status)
	}
	resp := &Response{StatusCode: code, Body: buf.Bytes()}
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return resp
}

// WriteTo writes the status line, then Content-Type, Content-Length, any
// other headers and "Connection: close", then the body as is.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", r.StatusCode, statusText(r.StatusCode))

	if ct, ok := r.Header.Get("Content-Type"); ok {
		writeField(&buf, "Content-Type", ct)
	}
	cl, ok := r.Header.Get("Content-Length")
	if !ok {
		cl = strconv.Itoa(len(r.Body))
	}
	writeField(&buf, "Content-Length", cl)
	for _, f := range r.Header {
		switch {
		case strings.EqualFold(f.Key, "Content-Type"),
			strings.EqualFold(f.Key, "Content-Length"),
			strings.EqualFold(f.Key, "Connection"):
			continue
		}
		writeField(&buf, f.Key, f.Value)
	}
	writeField(&buf, "Connection", "close")
	buf.WriteString("\r\n")

	n, err := w.Write(buf.Bytes())
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(r.Body)
	return int64(n + m), err
}

func writeField(buf *bytes.Buffer, key, value string) {
	// Header values must stay on one line.
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}
