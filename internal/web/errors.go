package web

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoute is returned when no registered route matches a request.
	ErrNoRoute = errors.New("no matching route")

	// ErrResponseSent is returned when a second response is written to the
	// same connection.
	ErrResponseSent = errors.New("response already sent")

	// ErrBodyConsumed is returned when the request body is read twice.
	ErrBodyConsumed = errors.New("request body already consumed")
)

// ParseError reports a malformed request line, header or multipart section.
type ParseError struct {
	What string // what was being parsed, e.g. "request line"
	Line string // offending input, possibly truncated
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.What, e.Line)
}

func newParseError(what string, line []byte) *ParseError {
	if len(line) > 80 {
		line = line[:80]
	}
	return &ParseError{What: what, Line: string(line)}
}

// RouteError is a handler-level rejection. It is sent to the client as JSON
// with a 403 status.
type RouteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *RouteError) Error() string {
	return fmt.Sprintf("route error %d: %s", e.Code, e.Message)
}

// NewRouteError creates a RouteError with a formatted message.
func NewRouteError(code int, format string, args ...any) *RouteError {
	msg := fmt.Sprintf(format, args...)
	if msg == "" {
		msg = "No details"
	}
	return &RouteError{Code: code, Message: msg}
}
