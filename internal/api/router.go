package api

import (
	"strings"

	"github.com/ColeHoward/filedrop/internal/types"
)

const DownloadPrefix = "/download/"

// serves the part of a path that follows a route's prefix
type RouteFunc func(rel string, root string) (*types.ResolvedFile, error)

type route struct {
	prefix  string
	handler RouteFunc
}

// Router only accepts GET and dispatches on path prefix, in registration order.
type Router struct {
	routes []route
}

func NewRouter() *Router {
	return &Router{}
}

// the router used by the server: GET /download/<rel> opens <root>/<rel>
func NewDownloadRouter() *Router {
	r := NewRouter()
	r.RegisterRoute(DownloadPrefix, OpenFile)
	return r
}

// adds a handler for every path starting with prefix
func (r *Router) RegisterRoute(prefix string, f RouteFunc) {
	r.routes = append(r.routes, route{prefix: prefix, handler: f})
}

// implements types.Resolver
func (r *Router) Resolve(req types.Request, root string) (*types.ResolvedFile, error) {
	if req.Method != "GET" {
		return nil, types.ErrMethodNotAllowed
	}

	for _, rt := range r.routes {
		if rel, ok := strings.CutPrefix(req.Path, rt.prefix); ok {
			return rt.handler(rel, root)
		}
	}

	// no match found
	return nil, types.ErrBadPath
}
