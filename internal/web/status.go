package web

// Status is an HTTP status code with its reason phrase.
type Status struct {
	Code int
	Text string
}

var (
	StatusSwitchingProtocols = Status{101, "Switching Protocols"}
	StatusOK                 = Status{200, "OK"}
	StatusCreated            = Status{201, "Created"}
	StatusNoContent          = Status{204, "No Content"}
	StatusBadRequest         = Status{400, "Bad Request"}
	StatusForbidden          = Status{403, "Forbidden"}
	StatusNotFound           = Status{404, "Not Found"}
)

// ContentType is a media type plus whether its payload is binary. Binary
// sections of a multipart response carry their own Content-Length.
type ContentType struct {
	Value  string
	Binary bool
}

var (
	ContentTypeText        = ContentType{Value: "text/plain"}
	ContentTypeJSON        = ContentType{Value: "application/json"}
	ContentTypeHTML        = ContentType{Value: "text/html; charset=iso-8859-1"}
	ContentTypeOctetStream = ContentType{Value: "application/octet-stream", Binary: true}
	ContentTypePNG         = ContentType{Value: "image/png", Binary: true}
	ContentTypeJPEG        = ContentType{Value: "image/jpeg", Binary: true}
)
