package layout

import (
	"fmt"
	"sort"
	"sync"
)

// Tag names a native value type in a Registry.
type Tag string

type Registry struct {
	mu      sync.RWMutex
	layouts map[Tag]*Layout
}

func NewRegistry() *Registry {
	return &Registry{layouts: make(map[Tag]*Layout)}
}

// Register adds l under its own name.
func (r *Registry) Register(l *Layout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := Tag(l.name)
	if _, exists := r.layouts[tag]; exists {
		return fmt.Errorf("duplicate layout: %s", l.name)
	}
	r.layouts[tag] = l
	return nil
}

func (r *Registry) Of(tag Tag) (*Layout, error) {
	r.mu.RLock()
	l, ok := r.layouts[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown layout: %s", tag)
	}
	return l, nil
}

func (r *Registry) MustOf(tag Tag) *Layout {
	l, err := r.Of(tag)
	if err != nil {
		panic(err)
	}
	return l
}

// Names returns the registered tags sorted by name.
func (r *Registry) Names() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]Tag, 0, len(r.layouts))
	for tag := range r.layouts {
		names = append(names, tag)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// All returns the registered layouts sorted by name.
func (r *Registry) All() []*Layout {
	names := r.Names()
	out := make([]*Layout, 0, len(names))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tag := range names {
		out = append(out, r.layouts[tag])
	}
	return out
}

// CheckAll runs Check on every registered layout.
func (r *Registry) CheckAll() error {
	for _, l := range r.All() {
		if err := Check(l); err != nil {
			return err
		}
	}
	return nil
}
