package web

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
)

// DefaultIndex is the file served for "/" by DefaultRouter.
const DefaultIndex = "index.html"

// Router is a static table from URL paths to files under an asset root.
// Paths are matched exactly; there are no patterns or parameters.
type Router struct {
	mu     sync.RWMutex
	routes map[string]string
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]string)}
}

// DefaultRouter serves index.html at "/".
func DefaultRouter() *Router {
	r := NewRouter()
	r.MustHandle("/", DefaultIndex)
	return r
}

// NewRouterFromMap builds a router from path -> file pairs.
func NewRouterFromMap(routes map[string]string) (*Router, error) {
	r := NewRouter()
	for path, file := range routes {
		if err := r.Handle(path, file); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Handle maps path to file. path must start with "/"; file is relative to
// the asset root and must be a valid fs.FS path (no leading slash, no "..").
func (r *Router) Handle(path, file string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("route %q: path must start with /", path)
	}
	file = strings.TrimPrefix(file, "./")
	if !fs.ValidPath(file) || file == "." {
		return fmt.Errorf("route %q: invalid file %q", path, file)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[path] = file
	return nil
}

// MustHandle is Handle that panics on an invalid route.
func (r *Router) MustHandle(path, file string) {
	if err := r.Handle(path, file); err != nil {
		panic(err)
	}
}

// Lookup returns the file mapped to path.
func (r *Router) Lookup(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	file, ok := r.routes[path]
	return file, ok
}

// Paths returns the routed URL paths in sorted order.
func (r *Router) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.routes))
	for p := range r.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
