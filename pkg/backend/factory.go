package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a backend instance from its configured name and free-form
// parameters.
type Factory func(name string, params map[string]string) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a backend kind available to New. Registering a kind twice
// returns ErrDuplicateBackend.
func Register(kind string, f Factory) error {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, ok := factories[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, kind)
	}
	factories[kind] = f
	return nil
}

// MustRegister is Register for package init functions. It panics on a
// duplicate kind.
func MustRegister(kind string, f Factory) {
	if err := Register(kind, f); err != nil {
		panic(err)
	}
}

// New builds a backend of the given kind. The handle's RootID comes from
// the backend when it implements Rooted.
func New(kind, name string, params map[string]string) (*Handle, error) {
	factoriesMu.RLock()
	f, ok := factories[kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}

	b, err := f(name, params)
	if err != nil {
		return nil, fmt.Errorf("backend %s (%s): %w", name, kind, err)
	}
	root := RootID
	if r, ok := b.(Rooted); ok && r.RootID() != "" {
		root = r.RootID()
	}
	return &Handle{Name: name, Kind: kind, Backend: b, RootID: root}, nil
}

// Kinds returns the registered backend kinds in sorted order.
func Kinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
