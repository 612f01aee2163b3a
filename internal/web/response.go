package web

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/voltlabs/volt/internal/logging"
	"github.com/voltlabs/volt/internal/version"
	"go.uber.org/zap"
)

const (
	crlf = "\r\n"

	// InvalidAPIBody is the fixed body of the invalid-request response.
	InvalidAPIBody = "Invalid api"

	// DateFormat is the IMF-fixdate layout used in Date headers.
	DateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// Response writes exactly one HTTP response to a connection.
type Response struct {
	w          *bufio.Writer
	codec      Codec
	remoteAddr string

	sent   bool
	status Status
	data   *string
}

func newResponse(w *bufio.Writer, codec Codec, remoteAddr string) *Response {
	return &Response{w: w, codec: codec, remoteAddr: remoteAddr}
}

// Status returns the status that was sent, or the zero Status before any
// response.
func (r *Response) Status() Status {
	return r.status
}

// Data returns the textual payload that was sent, if any.
func (r *Response) Data() *string {
	return r.data
}

// Sent reports whether a response has been written.
func (r *Response) Sent() bool {
	return r.sent
}

// SendJSON encodes v with the server codec and sends it.
func (r *Response) SendJSON(v any, status Status) error {
	body, err := r.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot serialize response: %w", err)
	}
	text := string(body)
	return r.send(status, ContentTypeJSON, body, &text)
}

// SendText sends a text/plain body.
func (r *Response) SendText(text string, status Status) error {
	return r.send(status, ContentTypeText, []byte(text), &text)
}

// SendEmpty sends a response without a body.
func (r *Response) SendEmpty(status Status) error {
	return r.send(status, ContentTypeText, nil, nil)
}

// SendBytes sends data with the given content type.
func (r *Response) SendBytes(contentType ContentType, data []byte, status Status) error {
	var text *string
	if !contentType.Binary {
		s := string(data)
		text = &s
	}
	return r.send(status, contentType, data, text)
}

// SendInvalid sends the generic invalid-request response. api is only
// logged.
func (r *Response) SendInvalid(api string) error {
	logging.Debug("Invalid request",
		zap.String("remote_addr", r.remoteAddr),
		zap.String("api", api),
	)
	body := InvalidAPIBody
	return r.send(StatusNotFound, ContentTypeHTML, []byte(body), &body)
}

// SendMultipart collects sections through fn and sends them as one
// multipart/mixed response with status 200.
func (r *Response) SendMultipart(fn func(m *MultipartWriter) error) error {
	m := &MultipartWriter{codec: r.codec}
	if err := fn(m); err != nil {
		return err
	}

	boundary, err := randomBoundary()
	if err != nil {
		return err
	}

	var body bytes.Buffer
	for _, section := range m.sections {
		body.WriteString("--" + boundary + crlf)
		body.WriteString("Content-Type: " + section.contentType.Value + crlf)
		if section.contentType.Binary {
			body.WriteString("Content-Length: " + strconv.Itoa(len(section.data)) + crlf)
		}
		body.WriteString(crlf)
		body.Write(section.data)
		body.WriteString(crlf)

		logging.LogRawBytes("Multipart section", section.data)
	}
	body.WriteString("--" + boundary + "--")

	contentType := ContentType{Value: `multipart/mixed; boundary="` + boundary + `"`}
	summary := fmt.Sprintf("multipart: %d sections", len(m.sections))
	return r.send(StatusOK, contentType, body.Bytes(), &summary)
}

func (r *Response) send(status Status, contentType ContentType, body []byte, text *string) error {
	if r.sent {
		return ErrResponseSent
	}
	r.sent = true
	r.status = status
	r.data = text

	w := r.w
	w.WriteString("HTTP/1.1 " + strconv.Itoa(status.Code) + " " + status.Text + crlf)
	w.WriteString("Server: " + version.ServerHeader() + crlf)
	w.WriteString("Date: " + time.Now().UTC().Format(DateFormat) + crlf)
	w.WriteString("Connection: close" + crlf)
	w.WriteString("Content-Type: " + contentType.Value + crlf)
	w.WriteString("Content-Length: " + strconv.Itoa(len(body)) + crlf)
	w.WriteString(crlf)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	logging.LogHTTPResponse(r.remoteAddr, status.Code, contentType.Value, len(body))
	return nil
}

func randomBoundary() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("cannot generate multipart boundary: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

type section struct {
	contentType ContentType
	data        []byte
}

// MultipartWriter collects the sections of a multipart/mixed response.
type MultipartWriter struct {
	codec    Codec
	sections []section
}

// JSON adds a JSON section.
func (m *MultipartWriter) JSON(v any) error {
	data, err := m.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot serialize multipart section: %w", err)
	}
	m.sections = append(m.sections, section{ContentTypeJSON, data})
	return nil
}

// Text adds a text/plain section.
func (m *MultipartWriter) Text(text string) {
	m.sections = append(m.sections, section{ContentTypeText, []byte(text)})
}

// Data adds a section with an arbitrary content type.
func (m *MultipartWriter) Data(contentType ContentType, data []byte) {
	m.sections = append(m.sections, section{contentType, data})
}

// Len returns the number of sections collected so far.
func (m *MultipartWriter) Len() int {
	return len(m.sections)
}
