package contentdirectory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/upnp-media/upnp-go/pkg/backend"
)

// IDSeparator joins a backend name and a backend object id when several
// backends are mounted.
const IDSeparator = "$"

// errNoBackends is returned by New when no backend is configured.
var errNoBackends = errors.New("contentdirectory: no backends")

// mounts maps ContentDirectory object ids onto backends. With a single
// backend its ids are used unchanged. With several, a virtual root lists
// each backend's root container and ids carry the backend name.
type mounts struct {
	handles []*backend.Handle
	byName  map[string]*backend.Handle
	title   string
}

func newMounts(handles []*backend.Handle, title string) (*mounts, error) {
	if len(handles) == 0 {
		return nil, errNoBackends
	}
	m := &mounts{handles: handles, byName: make(map[string]*backend.Handle, len(handles)), title: title}
	for _, h := range handles {
		if h.Name == "" || strings.Contains(h.Name, IDSeparator) {
			return nil, fmt.Errorf("contentdirectory: invalid backend name %q", h.Name)
		}
		if _, dup := m.byName[h.Name]; dup {
			return nil, fmt.Errorf("contentdirectory: duplicate backend name %q", h.Name)
		}
		m.byName[h.Name] = h
	}
	return m, nil
}

func (m *mounts) single() bool {
	return len(m.handles) == 1
}

// isVirtualRoot reports whether id is the synthetic root of a multi-backend
// tree.
func (m *mounts) isVirtualRoot(id string) bool {
	return !m.single() && id == backend.RootID
}

// resolve splits an object id into its backend and backend-local id.
func (m *mounts) resolve(id string) (*backend.Handle, string, error) {
	h, local := m.handles[0], id
	if !m.single() {
		name, rest, ok := strings.Cut(id, IDSeparator)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", backend.ErrNoSuchObject, id)
		}
		if h, ok = m.byName[name]; !ok {
			return nil, "", fmt.Errorf("%w: %s", backend.ErrNoSuchObject, id)
		}
		local = rest
	}
	if local == backend.RootID {
		local = h.Root()
	}
	return h, local, nil
}

// globalID maps a backend-local id into the ContentDirectory id space. A
// backend's root container is always published as RootID.
func (m *mounts) globalID(h *backend.Handle, local string) string {
	if local == h.Root() {
		local = backend.RootID
	}
	if m.single() {
		return local
	}
	return h.Name + IDSeparator + local
}

// export rewrites a backend item's ids for publication. The item is copied
// unless its ids are published unchanged.
func (m *mounts) export(h *backend.Handle, it *backend.Item) *backend.Item {
	if m.single() && h.Root() == backend.RootID {
		return it
	}
	c := it.Clone()
	c.ID = m.globalID(h, it.ID)
	switch {
	case it.ID != h.Root():
		c.ParentID = m.globalID(h, it.ParentID)
	case !m.single():
		c.ParentID = backend.RootID
	}
	return c
}

func (m *mounts) exportAll(h *backend.Handle, items []*backend.Item) []*backend.Item {
	out := make([]*backend.Item, len(items))
	for i, it := range items {
		out[i] = m.export(h, it)
	}
	return out
}

// virtualRoot is the synthetic root container of a multi-backend tree.
func (m *mounts) virtualRoot() *backend.Item {
	return &backend.Item{
		ID:         backend.RootID,
		ParentID:   backend.NoParentID,
		Title:      m.title,
		Class:      backend.ClassStorageFolder,
		Container:  true,
		ChildCount: len(m.handles),
		Searchable: true,
		Restricted: true,
	}
}

// roots returns each backend's root container, in configuration order.
func (m *mounts) roots(ctx context.Context) ([]*backend.Item, error) {
	out := make([]*backend.Item, 0, len(m.handles))
	for _, h := range m.handles {
		root, err := h.Backend.GetItem(ctx, h.Root())
		if err != nil {
			return nil, fmt.Errorf("backend %s root: %w", h.Name, err)
		}
		out = append(out, m.export(h, root))
	}
	return out, nil
}
