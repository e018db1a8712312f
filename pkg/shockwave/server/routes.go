package server

import (
	"github.com/wattnet/shockwave/pkg/shockwave/http11"
)

// route is one registered path/method pair. Method == "" matches any
// method. Path == "*" matches any path that reached the router (the
// catch-all).
type route struct {
	method  string
	path    string
	handler Handler
}

// Router dispatches requests to the first registered route whose method
// and path match, in registration order, falling back to a 404 if none
// match. Matching is deliberately simple: exact literal path comparison,
// or the wildcard path "*"; there is no parameterized-segment syntax
// (":id", "{id}") the way net/http's ServeMux-successors offer, since
// nothing downstream of this router needs path parameters extracted.
type Router struct {
	routes   []route
	notFound Handler
}

// NewRouter creates an empty Router. Call Handle/HandleFunc to register
// routes, then pass Router.ServeHTTP as a Config.Handler.
func NewRouter() *Router {
	return &Router{
		notFound: defaultNotFoundHandler,
	}
}

// Handle registers handler for method and path. method == "" matches any
// method; path == "*" matches any path.
func (rt *Router) Handle(method, path string, handler Handler) {
	rt.routes = append(rt.routes, route{method: method, path: path, handler: handler})
}

// HandleFunc is an alias of Handle kept for readability at call sites
// that register plain functions.
func (rt *Router) HandleFunc(method, path string, handler Handler) {
	rt.Handle(method, path, handler)
}

// NotFound overrides the handler invoked when no route matches.
func (rt *Router) NotFound(handler Handler) {
	rt.notFound = handler
}

// ServeHTTP has the Handler signature, so the method value rt.ServeHTTP
// can be assigned to Config.Handler.
func (rt *Router) ServeHTTP(w *http11.ResponseWriter, r *http11.Request) {
	method := r.Method()
	path := r.Path()

	for _, rte := range rt.routes {
		if rte.method != "" && rte.method != method {
			continue
		}
		if rte.path != "*" && rte.path != path {
			continue
		}
		rte.handler(w, r)
		return
	}

	rt.notFound(w, r)
}

func defaultNotFoundHandler(w *http11.ResponseWriter, r *http11.Request) {
	w.Header().Set([]byte("Content-Type"), []byte("text/plain; charset=utf-8"))
	w.WriteHeader(404)
	w.Write([]byte("404 not found"))
}
