package httpd

import "fmt"

// ErrorKind classifies what went wrong while serving a request.
type ErrorKind int

const (
	ParseError ErrorKind = iota
	RouteError
	NotFound
	ExecutionError
	IOError
)

func (k ErrorKind) Error() string {
	switch k {
	case ParseError:
		return "malformed request"
	case RouteError:
		return "request refused"
	case NotFound:
		return "not found"
	case ExecutionError:
		return "script execution failed"
	case IOError:
		return "I/O failure"
	default:
		return fmt.Sprintf("unknown error kind: %d", int(k))
	}
}

// Error carries an ErrorKind, the status it was answered with and the cause.
type Error struct {
	Kind   ErrorKind
	Status int

	underlying error
}

func newError(kind ErrorKind, status int, underlying error) *Error {
	return &Error{Kind: kind, Status: status, underlying: underlying}
}

func (e *Error) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("httpd: %s: %v", e.Kind.Error(), e.underlying)
	}
	return "httpd: " + e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.underlying
}

// Is lets errors.Is match an *Error against its ErrorKind.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}
