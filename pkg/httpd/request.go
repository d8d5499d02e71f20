package httpd

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/raphaelreyna/ez-httpd/pkg/header"
)

const (
	DefaultMaxHeaderBytes = 64 << 10
	DefaultMaxBodyBytes   = 10 << 20
)

var (
	errHeaderTooLarge = errors.New("request header too large")
	errBodyTooLarge   = errors.New("request body too large")
)

// Request is a parsed HTTP request.
type Request struct {
	Method   string
	Path     string // never includes the query or the protocol version
	Query    string
	HasQuery bool
	Header   header.Fields
	Body     []byte

	RemoteAddr string
}

// ParseRequest parses raw request bytes. It never fails: missing pieces are
// left empty and the router treats an empty path as not found.
func ParseRequest(b []byte) *Request {
	req := &Request{}
	line, rest := cutLine(string(b))
	req.parseRequestLine(line)

	for rest != "" {
		line, rest = cutLine(rest)
		if line == "" {
			req.Body = []byte(rest)
			break
		}
		if k, v, ok := header.ParseLine(line); ok {
			req.Header.Add(k, v)
		}
	}
	return req
}

func (req *Request) parseRequestLine(line string) {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		req.Method = fields[0]
	}
	if len(fields) < 2 {
		return
	}
	target := fields[1]
	if i := strings.IndexByte(target, '?'); i != -1 {
		req.Query = target[i+1:]
		req.HasQuery = true
		target = target[:i]
	}
	req.Path = target
}

func cutLine(s string) (line, rest string) {
	i := strings.IndexByte(s, '\n')
	if i == -1 {
		return strings.TrimSuffix(s, "\r"), ""
	}
	return strings.TrimSuffix(s[:i], "\r"), s[i+1:]
}

// ReadRequest reads one request from br: the header block up to the first
// empty line, then exactly Content-Length bytes of body.
// It returns io.EOF if the peer closed the connection before sending anything.
func ReadRequest(br *bufio.Reader, maxHeaderBytes, maxBodyBytes int64) (*Request, error) {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	var head []byte
	lineStart := true
	for {
		frag, err := br.ReadSlice('\n')
		head = append(head, frag...)
		if int64(len(head)) > maxHeaderBytes {
			return nil, newError(ParseError, http.StatusRequestEntityTooLarge, errHeaderTooLarge)
		}
		if err == bufio.ErrBufferFull {
			lineStart = false
			continue
		}
		if err == io.EOF {
			if len(head) == 0 {
				return nil, io.EOF
			}
			// The peer stopped writing without ending the header block.
			return ParseRequest(head), nil
		}
		if err != nil {
			return nil, newError(IOError, 0, err)
		}

		blank := lineStart && (len(frag) == 1 || (len(frag) == 2 && frag[0] == '\r'))
		lineStart = true
		if !blank {
			continue
		}
		if len(head) == len(frag) {
			// Stray empty line before the request line.
			head = head[:0]
			continue
		}
		break
	}

	req := ParseRequest(head)
	cl, ok := req.Header.Get("Content-Length")
	if !ok {
		return req, nil
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n <= 0 {
		return req, nil
	}
	if n > maxBodyBytes {
		return req, newError(ParseError, http.StatusRequestEntityTooLarge, errBodyTooLarge)
	}
	req.Body = make([]byte, n)
	if _, err := io.ReadFull(br, req.Body); err != nil {
		return req, newError(IOError, 0, err)
	}
	return req, nil
}
