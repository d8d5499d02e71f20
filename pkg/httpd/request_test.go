package httpd

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestParseRequest(t *testing.T) {
	type test struct {
		Name     string
		Raw      string
		Method   string
		Path     string
		Query    string
		HasQuery bool
		Headers  int
		Body     string
	}

	tt := []test{
		{
			Name:   "Empty",
			Raw:    "",
			Method: "",
			Path:   "",
		},
		{
			Name:    "Simple GET",
			Raw:     "GET /index.html HTTP/1.1\r\nHost: localhost\r\n\r\n",
			Method:  "GET",
			Path:    "/index.html",
			Headers: 1,
		},
		{
			Name:     "Query",
			Raw:      "GET /scripts/q?a=1&b=2?c HTTP/1.1\r\n\r\n",
			Method:   "GET",
			Path:     "/scripts/q",
			Query:    "a=1&b=2?c",
			HasQuery: true,
		},
		{
			Name:     "Empty query",
			Raw:      "GET /x? HTTP/1.1\r\n\r\n",
			Method:   "GET",
			Path:     "/x",
			HasQuery: true,
		},
		{
			Name:    "Body",
			Raw:     "POST /scripts/echo HTTP/1.1\r\nContent-Length: 11\r\nX-Bogus\r\n\r\nhello\r\nthere",
			Method:  "POST",
			Path:    "/scripts/echo",
			Headers: 1,
			Body:    "hello\r\nthere",
		},
		{
			Name:   "Single token",
			Raw:    "GET\r\n\r\n",
			Method: "GET",
			Path:   "",
		},
		{
			Name:    "Bare newlines",
			Raw:     "GET /a HTTP/1.0\nA: b\n\nbody",
			Method:  "GET",
			Path:    "/a",
			Headers: 1,
			Body:    "body",
		},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			req := ParseRequest([]byte(tc.Raw))
			if req.Method != tc.Method || req.Path != tc.Path {
				t.Fatalf("wrong request line - expected: %q %q\treceived: %q %q", tc.Method, tc.Path, req.Method, req.Path)
			}
			if req.Query != tc.Query || req.HasQuery != tc.HasQuery {
				t.Fatalf("wrong query - expected: %q (%v)\treceived: %q (%v)", tc.Query, tc.HasQuery, req.Query, req.HasQuery)
			}
			if len(req.Header) != tc.Headers {
				t.Fatalf("wrong header count - expected: %d\treceived: %d (%v)", tc.Headers, len(req.Header), req.Header)
			}
			if string(req.Body) != tc.Body {
				t.Fatalf("wrong body - expected: %q\treceived: %q", tc.Body, string(req.Body))
			}
		})
	}
}

func TestParseRequestHeaderOrder(t *testing.T) {
	req := ParseRequest([]byte("GET / HTTP/1.1\r\nb-Key: 2\r\nA-Key: 1\r\n\r\n"))
	if len(req.Header) != 2 || req.Header[0].Key != "b-Key" || req.Header[1].Key != "A-Key" {
		t.Fatalf("headers lost order or case: %v", req.Header)
	}
}

func TestReadRequestLargeBody(t *testing.T) {
	body := strings.Repeat("x", 100000)
	raw := "POST /scripts/cat HTTP/1.1\r\ncontent-length: 100000\r\n\r\n" + body + "trailing garbage"

	req, err := ReadRequest(bufio.NewReaderSize(strings.NewReader(raw), 1024), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if string(req.Body) != body {
		t.Fatalf("wrong body length - expected: %d\treceived: %d", len(body), len(req.Body))
	}
}

func TestReadRequestEOF(t *testing.T) {
	_, err := ReadRequest(bufio.NewReader(strings.NewReader("")), 0, 0)
	if err != io.EOF {
		t.Fatalf("expected io.EOF, received: %v", err)
	}
}

func TestReadRequestWithoutBlankLine(t *testing.T) {
	req, err := ReadRequest(bufio.NewReader(strings.NewReader("GET /index.html HTTP/1.1\r\nHost: x\r\n")), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if req.Method != "GET" || req.Path != "/index.html" {
		t.Fatalf("wrong request: %+v", req)
	}
}

func TestReadRequestLimits(t *testing.T) {
	long := "GET /" + strings.Repeat("a", 5000) + " HTTP/1.1\r\n\r\n"
	_, err := ReadRequest(bufio.NewReaderSize(strings.NewReader(long), 16), 1024, 0)
	var e *Error
	if !errors.As(err, &e) || e.Status != http.StatusRequestEntityTooLarge || !errors.Is(err, ParseError) {
		t.Fatalf("expected 413 parse error for long header, received: %v", err)
	}

	big := "POST / HTTP/1.1\r\nContent-Length: 2048\r\n\r\n"
	_, err = ReadRequest(bufio.NewReader(strings.NewReader(big)), 0, 1024)
	if !errors.As(err, &e) || e.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for large body, received: %v", err)
	}

	short := "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc"
	_, err = ReadRequest(bufio.NewReader(strings.NewReader(short)), 0, 0)
	if !errors.Is(err, IOError) {
		t.Fatalf("expected IOError for truncated body, received: %v", err)
	}
}
