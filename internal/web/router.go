package web

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
)

var paramRegExp = regexp.MustCompile(`:[^/]+`)

// Handler serves one routed request.
type Handler interface {
	ServeRequest(ctx context.Context, req *Request, resp *Response) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request, resp *Response) error

// ServeRequest calls f.
func (f HandlerFunc) ServeRequest(ctx context.Context, req *Request, resp *Response) error {
	return f(ctx, req, resp)
}

// route is immutable once registered.
type route struct {
	method   string
	template string
	pattern  *regexp.Regexp
	params   []string
	handler  Handler
}

// Match is the result of routing a request.
type Match struct {
	Method   string
	Template string
	Handler  Handler
	Params   map[string]string
	Args     map[string]string
}

// Router matches method and path against templates in registration order.
// Routes must be registered before the server starts; the table is read
// without locking afterwards.
type Router struct {
	routes []*route
	frozen atomic.Bool
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{}
}

// Handle registers h for method and template. It panics when called after
// Freeze.
func (rt *Router) Handle(method, template string, h Handler) {
	if rt.frozen.Load() {
		panic("web: route " + method + " " + template + " registered after serving started")
	}

	key := method + "//" + template
	var pattern strings.Builder
	var params []string

	pattern.WriteString("^")
	last := 0
	for _, loc := range paramRegExp.FindAllStringIndex(key, -1) {
		pattern.WriteString(regexp.QuoteMeta(key[last:loc[0]]))
		pattern.WriteString(`([^/]+)`)
		params = append(params, key[loc[0]+1:loc[1]])
		last = loc[1]
	}
	pattern.WriteString(regexp.QuoteMeta(key[last:]))
	pattern.WriteString("$")

	rt.routes = append(rt.routes, &route{
		method:   method,
		template: template,
		pattern:  regexp.MustCompile(pattern.String()),
		params:   params,
		handler:  h,
	})
}

// Get registers fn for GET requests.
func (rt *Router) Get(template string, fn HandlerFunc) {
	rt.Handle("GET", template, fn)
}

// Post registers fn for POST requests.
func (rt *Router) Post(template string, fn HandlerFunc) {
	rt.Handle("POST", template, fn)
}

// Put registers fn for PUT requests.
func (rt *Router) Put(template string, fn HandlerFunc) {
	rt.Handle("PUT", template, fn)
}

// Delete registers fn for DELETE requests.
func (rt *Router) Delete(template string, fn HandlerFunc) {
	rt.Handle("DELETE", template, fn)
}

// Freeze makes the route table read-only.
func (rt *Router) Freeze() {
	rt.frozen.Store(true)
}

// Len returns the number of registered routes.
func (rt *Router) Len() int {
	return len(rt.routes)
}

// Match routes method and rawURL. The query string is stripped before
// matching and parsed into Match.Args.
func (rt *Router) Match(method, rawURL string) (*Match, bool) {
	path, query, hasQuery := strings.Cut(rawURL, "?")
	subject := method + "//" + path

	for _, r := range rt.routes {
		groups := r.pattern.FindStringSubmatch(subject)
		if groups == nil {
			continue
		}

		params := make(map[string]string, len(r.params))
		for i, value := range groups[1:] {
			params[r.params[i]] = value
		}

		args := map[string]string{}
		if hasQuery {
			args = parseArguments(query)
		}

		return &Match{
			Method:   r.method,
			Template: r.template,
			Handler:  r.handler,
			Params:   params,
			Args:     args,
		}, true
	}

	return nil, false
}

// parseArguments splits query on '&' then '='. Keys and values are
// URL-decoded; the first occurrence of a repeated key wins.
func parseArguments(query string) map[string]string {
	args := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = unescape(key)
		if _, exists := args[key]; exists {
			continue
		}
		args[key] = unescape(value)
	}
	return args
}

func unescape(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}
