package types

import (
	"os"
)

// represents a parsed request head
type Request struct {
	Protocol string
	Method   string
	Path     string
	Headers  map[string]string
}

// returns the value of a header, matched case-sensitively
func (r Request) Header(name string) (string, bool) {
	v, ok := r.Headers[name]
	return v, ok
}

// reports whether the client asked for a chunked body
func (r Request) WantsChunked() bool {
	v, ok := r.Headers["Transfer-Encoding"]
	return ok && v == "chunked"
}

// an opened file ready to be streamed back to the client
type ResolvedFile struct {
	File *os.File
	Size int64
}

func (f *ResolvedFile) Close() error {
	if f == nil || f.File == nil {
		return nil
	}
	return f.File.Close()
}

// decides whether a request can be served from root
type Resolver interface {
	Resolve(req Request, root string) (*ResolvedFile, error)
}

// function type that implements Resolver
type ResolverFunc func(req Request, root string) (*ResolvedFile, error)

// calls f(req, root)
func (f ResolverFunc) Resolve(req Request, root string) (*ResolvedFile, error) {
	return f(req, root)
}
