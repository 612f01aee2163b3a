package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/voltlabs/volt/internal/stream"
)

var multipartRegExp = regexp.MustCompile(`^multipart/form-data; ?boundary=(.+)$`)

// Request is a routed HTTP request. The body is read lazily from the
// connection, so it can be consumed at most once: either with Body,
// DecodeBody, or part by part with NextPart.
type Request struct {
	Method     string
	URL        string
	RemoteAddr string
	Header     Header
	Params     map[string]string
	Args       map[string]string

	reader      *stream.Reader
	codec       Codec
	bodyTimeout time.Duration
	bodyRead    bool

	boundary   string // "--" + multipart boundary, empty when not multipart
	current    *Part
	atBoundary bool
	partsDone  bool
}

func newRequest(line RequestLine, remoteAddr string, header Header, match *Match, reader *stream.Reader, codec Codec, bodyTimeout time.Duration) *Request {
	req := &Request{
		Method:      line.Method,
		URL:         line.URL,
		RemoteAddr:  remoteAddr,
		Header:      header,
		Params:      match.Params,
		Args:        match.Args,
		reader:      reader,
		codec:       codec,
		bodyTimeout: bodyTimeout,
	}

	if m := multipartRegExp.FindStringSubmatch(header.Get("Content-Type")); m != nil {
		req.boundary = "--" + strings.Trim(m[1], `"`)
	}

	return req
}

// ContentLength returns the declared body length.
func (r *Request) ContentLength() (int, error) {
	value, ok := r.Header.Lookup("Content-Length")
	if !ok {
		return 0, errors.New("missing Content-Length header")
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0, &ParseError{What: "Content-Length", Line: value}
	}
	return n, nil
}

// Body reads the whole body as declared by Content-Length.
func (r *Request) Body() ([]byte, error) {
	if r.bodyRead {
		return nil, ErrBodyConsumed
	}
	n, err := r.ContentLength()
	if err != nil {
		return nil, err
	}
	r.bodyRead = true

	if n == 0 {
		return []byte{}, nil
	}

	body, err := r.reader.ReadBytes(n, r.bodyTimeout, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot read request body: %w", err)
	}
	return body, nil
}

// Text reads the whole body as a string.
func (r *Request) Text() (string, error) {
	body, err := r.Body()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DecodeBody reads the body and decodes it into v with the server codec.
func (r *Request) DecodeBody(v any) error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	if err := r.codec.Unmarshal(body, v); err != nil {
		return fmt.Errorf("cannot deserialize body: %w", err)
	}
	return nil
}

// IsMultipart reports whether the request declares a multipart/form-data
// body.
func (r *Request) IsMultipart() bool {
	return r.boundary != ""
}

// NextPart returns the next section of a multipart/form-data body, or nil
// once no boundary line follows. A part whose body was not read is skipped.
func (r *Request) NextPart() (*Part, error) {
	if r.boundary == "" || r.partsDone {
		return nil, nil
	}
	r.bodyRead = true

	if r.current != nil {
		if err := r.current.drain(); err != nil {
			return nil, err
		}
		r.current = nil
	}

	more, err := r.readBoundary()
	if err != nil || !more {
		r.partsDone = true
		return nil, err
	}

	part := &Part{ContentLength: -1, req: r}
	for n := 0; ; n++ {
		line, err := r.reader.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line) <= 2 {
			break
		}
		if n >= maxHeaderLines {
			return nil, newParseError("part header section (too many lines)", line)
		}

		m := headerLineRegExp.FindSubmatch(line)
		if m == nil {
			continue
		}
		value := string(m[2])
		switch strings.ToLower(string(m[1])) {
		case "content-disposition":
			part.ContentDisposition = value
		case "content-type":
			part.ContentType = value
		case "content-length":
			length, err := strconv.Atoi(value)
			if err != nil || length < 0 {
				return nil, newParseError("part Content-Length", line)
			}
			part.ContentLength = length
		}
	}

	part.Params = dispositionParams(part.ContentDisposition)
	r.current = part
	return part, nil
}

// readBoundary consumes the delimiter that introduces a part and reports
// whether a part follows. Only the two bytes after the delimiter are read, so
// a close delimiter without a trailing CRLF ends the parts without waiting for
// more input.
func (r *Request) readBoundary() (bool, error) {
	if r.atBoundary {
		// A delimiter-bounded body already consumed "\r\n--boundary".
		r.atBoundary = false
	} else {
		// Skip the preamble, or the CRLF closing a length-bounded part.
		if _, err := r.reader.ReadBytesUntil([]byte(r.boundary), false); err != nil {
			return false, endOfParts(err)
		}
	}

	suffix, err := r.reader.ReadBytes(2, r.bodyTimeout, nil, nil)
	if err != nil {
		return false, endOfParts(err)
	}
	switch string(suffix) {
	case "\r\n":
		return true, nil
	case "--":
		return false, nil
	}

	// Transport padding may sit between the delimiter and its CRLF.
	rest, err := r.reader.ReadBytesUntil([]byte("\n"), true)
	if err != nil {
		return false, endOfParts(err)
	}
	return len(bytes.TrimSpace(append(suffix, rest...))) == 0, nil
}

func endOfParts(err error) error {
	if errors.Is(err, stream.ErrStreamClosed) {
		return nil
	}
	return err
}

// dispositionParams extracts the parameters of a form-data
// Content-Disposition value, URL-decoding them.
func dispositionParams(disposition string) map[string]string {
	params := make(map[string]string)
	disposition = strings.TrimSpace(disposition)
	if !strings.HasPrefix(disposition, "form-data;") {
		return params
	}

	for _, field := range strings.Split(disposition, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		params[key] = unescape(strings.ReplaceAll(value, `"`, ""))
	}
	return params
}

// Part is one section of a multipart/form-data request body.
type Part struct {
	ContentType        string
	ContentDisposition string
	// ContentLength is -1 when the part did not declare one; its body then
	// extends to the next boundary.
	ContentLength int
	Params        map[string]string

	req      *Request
	consumed bool
}

// Name returns the form field name.
func (p *Part) Name() string {
	return p.Params["name"]
}

// FileName returns the uploaded file name, if any.
func (p *Part) FileName() string {
	return p.Params["filename"]
}

// Body streams the part body into sink. onPartial observes every chunk.
func (p *Part) Body(sink io.Writer, onPartial func([]byte)) error {
	if p.consumed {
		return ErrBodyConsumed
	}
	p.consumed = true
	if sink == nil {
		sink = io.Discard
	}

	r := p.req
	if p.ContentLength >= 0 {
		if p.ContentLength == 0 {
			return nil
		}
		_, err := r.reader.ReadBytes(p.ContentLength, r.bodyTimeout, sink, onPartial)
		return err
	}

	data, err := r.reader.ReadBytesUntil([]byte("\r\n"+r.boundary), false)
	if err != nil {
		return err
	}
	r.atBoundary = true

	stream.Observe(onPartial, data)
	if _, err := sink.Write(data); err != nil {
		return fmt.Errorf("failed to write part body: %w", err)
	}
	return nil
}

// Bytes reads the whole part body into memory.
func (p *Part) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Body(&buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Part) drain() error {
	if p.consumed {
		return nil
	}
	return p.Body(io.Discard, nil)
}
