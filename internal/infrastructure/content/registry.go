package content

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ArticlePublisher/internal/domain"
)

// Request carries the parameters of one load.
type Request struct {
	SourceName string
	Root       string
	Location   *time.Location
}

// Loader reads content items of a single storage format (Markdown tree,
// manifest file, etc.).
type Loader interface {
	Type() string
	Load(ctx context.Context, req Request) ([]domain.ContentItem, error)
}

// Registry keeps a mapping from type tags to loader implementations.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: map[string]Loader{}}
}

// DefaultRegistry has every built-in loader registered.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(MarkdownLoader{})
	reg.Register(ManifestLoader{})
	return reg
}

// Register adds or replaces a loader implementation.
func (r *Registry) Register(loader Loader) {
	if r.loaders == nil {
		r.loaders = map[string]Loader{}
	}
	r.loaders[loader.Type()] = loader
}

// Resolve returns a loader by type tag or an error if it is absent.
func (r *Registry) Resolve(typ string) (Loader, error) {
	if loader, ok := r.loaders[typ]; ok {
		return loader, nil
	}
	return nil, fmt.Errorf("content type %q is not registered (known: %v)", typ, r.Types())
}

// Types lists the registered type tags.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.loaders))
	for t := range r.loaders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
