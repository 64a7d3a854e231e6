package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	ErrUnknownIdentifier   = errors.New("unknown identifier")
	ErrDuplicateIdentifier = errors.New("identifier already registered")
	ErrInvalidOptions      = errors.New("invalid options")
)

// Factory builds a component from its configuration section.
type Factory[T any] func(options map[string]any) (T, error)

// Registry maps configuration names to factories.
type Registry[T any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:      kind,
		factories: make(map[string]Factory[T]),
	}
}

func (r *Registry[T]) Register(name string, f Factory[T]) error {
	if name == "" || f == nil {
		return fmt.Errorf("%s registry: name and factory are required", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%s %q: %w", r.kind, name, ErrDuplicateIdentifier)
	}
	r.factories[name] = f

	return nil
}

func (r *Registry[T]) Build(name string, options map[string]any) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T

		return zero, fmt.Errorf("%s %q: %w (known: %s)", r.kind, name, ErrUnknownIdentifier, strings.Join(r.Names(), ", "))
	}

	v, err := f(options)
	if err != nil {
		var zero T

		return zero, fmt.Errorf("failed to build %s %q: %w", r.kind, name, err)
	}

	return v, nil
}

func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// DecodeOptions copies a loosely typed options map into a typed struct by
// way of its JSON tags. Unknown keys are rejected so typos surface at
// bootstrap.
func DecodeOptions(options map[string]any, dst any) error {
	if len(options) == 0 {
		return nil
	}

	data, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	return nil
}
