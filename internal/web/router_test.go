package web

import (
	"context"
	"testing"
)

func noop(ctx context.Context, req *Request, resp *Response) error { return nil }

func TestRouterMatch(t *testing.T) {
	rt := NewRouter()
	rt.Get("/a/:id", noop)
	rt.Get("/a/:id/b/:name", noop)
	rt.Post("/a/:id", noop)
	rt.Get("/files/x.y", noop)

	tests := []struct {
		name     string
		method   string
		url      string
		ok       bool
		template string
		params   map[string]string
		args     map[string]string
	}{
		{
			name:     "param and query",
			method:   "GET",
			url:      "/a/42?x=1",
			ok:       true,
			template: "/a/:id",
			params:   map[string]string{"id": "42"},
			args:     map[string]string{"x": "1"},
		},
		{
			name:     "two params",
			method:   "GET",
			url:      "/a/7/b/bob",
			ok:       true,
			template: "/a/:id/b/:name",
			params:   map[string]string{"id": "7", "name": "bob"},
			args:     map[string]string{},
		},
		{
			name:     "method selects route",
			method:   "POST",
			url:      "/a/1",
			ok:       true,
			template: "/a/:id",
			params:   map[string]string{"id": "1"},
			args:     map[string]string{},
		},
		{
			name:     "literal dot is not a wildcard",
			method:   "GET",
			url:      "/files/x.y",
			ok:       true,
			template: "/files/x.y",
			params:   map[string]string{},
			args:     map[string]string{},
		},
		{name: "literal dot mismatch", method: "GET", url: "/files/xzy"},
		{name: "param never spans segments", method: "GET", url: "/a/1/2"},
		{name: "unknown method", method: "DELETE", url: "/a/1"},
		{name: "empty param", method: "GET", url: "/a/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := rt.Match(tt.method, tt.url)
			if ok != tt.ok {
				t.Fatalf("Match(%q, %q) ok = %v, want %v", tt.method, tt.url, ok, tt.ok)
			}
			if !ok {
				return
			}
			if m.Template != tt.template {
				t.Errorf("Template = %q, want %q", m.Template, tt.template)
			}
			assertMap(t, "Params", m.Params, tt.params)
			assertMap(t, "Args", m.Args, tt.args)
		})
	}
}

func TestRouterFirstRegisteredWins(t *testing.T) {
	rt := NewRouter()
	var hit string
	rt.Get("/items/:id", func(ctx context.Context, req *Request, resp *Response) error {
		hit = "param"
		return nil
	})
	rt.Get("/items/special", func(ctx context.Context, req *Request, resp *Response) error {
		hit = "literal"
		return nil
	})

	m, ok := rt.Match("GET", "/items/special")
	if !ok {
		t.Fatal("expected a match")
	}
	_ = m.Handler.ServeRequest(context.Background(), nil, nil)
	if hit != "param" {
		t.Errorf("matched %q route, want the first registered", hit)
	}
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		query string
		want  map[string]string
	}{
		{"a=1&b=2", map[string]string{"a": "1", "b": "2"}},
		{"q=hello%20world&t=a+b", map[string]string{"q": "hello world", "t": "a b"}},
		{"a=1&a=2", map[string]string{"a": "1"}},
		{"flag&x=", map[string]string{"flag": "", "x": ""}},
		{"&&k=v&", map[string]string{"k": "v"}},
		{"bad=%zz", map[string]string{"bad": "%zz"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assertMap(t, "args", parseArguments(tt.query), tt.want)
		})
	}
}

func TestRouterFreeze(t *testing.T) {
	rt := NewRouter()
	rt.Get("/", noop)
	rt.Freeze()

	defer func() {
		if recover() == nil {
			t.Error("Handle after Freeze did not panic")
		}
	}()
	rt.Get("/late", noop)
}

func assertMap(t *testing.T, label string, got, want map[string]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s = %v, want %v", label, got, want)
		return
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s[%q] = %q, want %q", label, k, got[k], v)
		}
	}
}
