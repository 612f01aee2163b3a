// Package web is the HTTP/1.x front-end of volt: request-line and header
// parsing, path-template routing, request bodies (plain, JSON and
// multipart/form-data) and response writing (single payload or
// multipart/mixed).
//
// It reads directly from a stream.Reader and writes directly to the socket;
// net/http is not involved. Each connection carries exactly one request and is
// closed once the response has been flushed.
//
// # Routing
//
// Routes are registered on a Router before the server starts:
//
//	router := web.NewRouter()
//	router.Get("/items/:id", func(ctx context.Context, req *web.Request, resp *web.Response) error {
//	    return resp.SendText("item "+req.Params["id"], web.StatusOK)
//	})
//
// A template segment starting with ':' captures one path segment. Requests
// are matched against routes in registration order and the first match wins,
// so register specific templates before general ones. The query string is
// parsed separately into Request.Args.
//
// # Errors
//
// A handler returning a *RouteError produces a 403 response whose body is
// the error as JSON. Any other failure (malformed request, timeout, closed
// stream, unknown route, handler error) produces a 404 "Invalid api"
// response.
package web
