package web

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/voltlabs/volt/internal/stream"
)

// maxHeaderLines bounds the number of header lines accepted per section.
const maxHeaderLines = 100

var (
	requestLineRegExp = regexp.MustCompile(`^([^ ]+) ([^ ]+) HTTP/(\d)\.(\d)\r\n$`)
	headerLineRegExp  = regexp.MustCompile(`^([^:]+):[ \t]*(.*?)[ \t]*\r\n$`)
)

// RequestLine is the first line of an HTTP request.
type RequestLine struct {
	Method string
	URL    string
	Major  int
	Minor  int
}

// Header maps header names to values. Lookups are case-insensitive and a
// repeated header replaces the earlier value.
type Header map[string]string

// Get returns the value of name, or "" when absent.
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Lookup returns the value of name and whether it was present.
func (h Header) Lookup(name string) (string, bool) {
	v, ok := h[strings.ToLower(name)]
	return v, ok
}

// Set stores value under name, replacing any previous value.
func (h Header) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// ReadRequestLine reads and parses "<METHOD> <PATH> HTTP/<major>.<minor>\r\n".
func ReadRequestLine(r *stream.Reader) (RequestLine, error) {
	line, err := r.ReadLine()
	if err != nil {
		return RequestLine{}, err
	}

	m := requestLineRegExp.FindSubmatch(line)
	if m == nil {
		return RequestLine{}, newParseError("request line", line)
	}

	major, _ := strconv.Atoi(string(m[3]))
	minor, _ := strconv.Atoi(string(m[4]))
	return RequestLine{
		Method: string(m[1]),
		URL:    string(m[2]),
		Major:  major,
		Minor:  minor,
	}, nil
}

// ReadHeaders reads "<name>: <value>\r\n" lines up to and including the empty
// line that ends the section. Lines that are not headers are skipped.
func ReadHeaders(r *stream.Reader) (Header, error) {
	header := make(Header)

	for n := 0; ; n++ {
		line, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 2 {
			return header, nil
		}
		if n >= maxHeaderLines {
			return nil, newParseError("header section (too many lines)", line)
		}

		if m := headerLineRegExp.FindSubmatch(line); m != nil {
			header.Set(string(m[1]), string(m[2]))
		}
	}
}
