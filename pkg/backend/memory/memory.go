package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/upnp-media/upnp-go/pkg/backend"
)

// Kind is the factory name of the in-memory backend.
const Kind = "memory"

// Factory parameters.
const (
	// ParamFixture names a YAML file to load at construction.
	ParamFixture = "fixture"

	// ParamTitle overrides the root container title.
	ParamTitle = "title"

	// ParamWritable enables CreateObject and DestroyObject when "true".
	ParamWritable = "writable"

	// ParamRootID sets the id of the root container.
	ParamRootID = "root_id"
)

func init() {
	backend.MustRegister(Kind, Factory)
}

// Compile-time interface satisfaction check.
var (
	_ backend.Backend  = (*Store)(nil)
	_ backend.Searcher = (*Store)(nil)
	_ backend.Sorter   = (*Store)(nil)
	_ backend.Notifier = (*Store)(nil)
	_ backend.Writer   = (*Store)(nil)
	_ backend.Formats  = (*Store)(nil)
	_ backend.Rooted   = (*Store)(nil)
)

// searchCapabilities are the properties Search can match on.
var searchCapabilities = []string{
	backend.PropID, backend.PropParentID, backend.PropTitle, backend.PropCreator,
	backend.PropDate, backend.PropClass, backend.PropArtist, backend.PropAlbum,
	backend.PropGenre, backend.PropTrackNumber, backend.PropProtocol,
}

type node struct {
	item     *backend.Item
	children []string

	// updateID counts changes to the container's direct children.
	updateID uint32
}

// Store is a content tree held in memory.
type Store struct {
	mu       sync.RWMutex
	objects  map[string]*node
	root     string
	nextID   int
	writable bool

	watchMu  sync.Mutex
	watchers []func(backend.Change)
}

// New creates a store with an empty root container titled title.
func New(title string) *Store {
	return NewRooted(title, backend.RootID)
}

// NewRooted is New with rootID as the id of the root container.
func NewRooted(title, rootID string) *Store {
	root := &backend.Item{
		ID:         rootID,
		ParentID:   backend.NoParentID,
		Title:      title,
		Class:      backend.ClassStorageFolder,
		Container:  true,
		Searchable: true,
		Restricted: true,
	}
	return &Store{
		objects: map[string]*node{rootID: {item: root}},
		root:    rootID,
		nextID:  1,
	}
}

// RootID returns the id of the root container.
func (s *Store) RootID() string {
	return s.root
}

// Factory builds a Store from configuration parameters.
func Factory(name string, params map[string]string) (backend.Backend, error) {
	title := name
	if t := params[ParamTitle]; t != "" {
		title = t
	}
	rootID := backend.RootID
	if r := params[ParamRootID]; r != "" {
		rootID = r
	}
	s := NewRooted(title, rootID)
	if w := params[ParamWritable]; w != "" {
		v, err := strconv.ParseBool(w)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", ParamWritable, err)
		}
		s.writable = v
	}
	if path := params[ParamFixture]; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening fixture: %w", err)
		}
		defer f.Close()
		if err := s.Load(f); err != nil {
			return nil, fmt.Errorf("loading fixture %s: %w", path, err)
		}
	}
	return s, nil
}

// SetWritable enables or disables the Writer operations.
func (s *Store) SetWritable(w bool) {
	s.mu.Lock()
	s.writable = w
	s.mu.Unlock()
}

// Add inserts item below item.ParentID. An empty ID is assigned
// automatically. The stored item is a copy; the assigned id is returned.
func (s *Store) Add(item *backend.Item) (string, error) {
	s.mu.Lock()
	id, change, err := s.addLocked(item)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.notify(change)
	return id, nil
}

func (s *Store) addLocked(item *backend.Item) (string, backend.Change, error) {
	parent, ok := s.objects[item.ParentID]
	if !ok {
		return "", backend.Change{}, fmt.Errorf("%w: %s", backend.ErrNoSuchContainer, item.ParentID)
	}
	if !parent.item.Container {
		return "", backend.Change{}, fmt.Errorf("%w: %s", backend.ErrParentNotContainer, item.ParentID)
	}

	c := item.Clone()
	if c.ID == "" {
		c.ID = s.allocID()
	}
	if _, dup := s.objects[c.ID]; dup {
		return "", backend.Change{}, fmt.Errorf("%w: %s", backend.ErrDuplicateObjectID, c.ID)
	}
	if c.Class == "" {
		if c.Container {
			c.Class = backend.ClassContainer
		} else {
			c.Class = backend.ClassItem
		}
	}

	s.objects[c.ID] = &node{item: c}
	parent.children = append(parent.children, c.ID)
	parent.updateID++
	return c.ID, backend.Change{ContainerID: parent.item.ID, UpdateID: parent.updateID}, nil
}

func (s *Store) allocID() string {
	for {
		id := strconv.Itoa(s.nextID)
		s.nextID++
		if _, taken := s.objects[id]; !taken {
			return id
		}
	}
}

// Remove deletes an object and everything below it. The root cannot be
// removed.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	change, err := s.removeLocked(id)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(change)
	return nil
}

func (s *Store) removeLocked(id string) (backend.Change, error) {
	n, ok := s.objects[id]
	if !ok {
		return backend.Change{}, fmt.Errorf("%w: %s", backend.ErrNoSuchObject, id)
	}
	if id == s.root {
		return backend.Change{}, fmt.Errorf("%w: root container", backend.ErrRestrictedObject)
	}

	s.dropSubtree(n)
	parent := s.objects[n.item.ParentID]
	for i, cid := range parent.children {
		if cid == id {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	parent.updateID++
	return backend.Change{ContainerID: parent.item.ID, UpdateID: parent.updateID}, nil
}

func (s *Store) dropSubtree(n *node) {
	for _, cid := range n.children {
		if c, ok := s.objects[cid]; ok {
			s.dropSubtree(c)
		}
	}
	delete(s.objects, n.item.ID)
}

// Len returns the number of objects including the root.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// UpdateID returns a container's update id.
func (s *Store) UpdateID(containerID string) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.objects[containerID]
	if !ok || !n.item.Container {
		return 0, fmt.Errorf("%w: %s", backend.ErrNoSuchContainer, containerID)
	}
	return n.updateID, nil
}

// view returns a copy of the node's item with ChildCount filled in.
func (s *Store) view(n *node) *backend.Item {
	c := n.item.Clone()
	if c.Container {
		c.ChildCount = len(n.children)
	}
	return c
}

// ListChildren implements backend.Backend.
func (s *Store) ListChildren(ctx context.Context, containerID string, start, count int, sort []backend.SortKey) (backend.Page, error) {
	if err := ctx.Err(); err != nil {
		return backend.Page{}, err
	}

	s.mu.RLock()
	n, ok := s.objects[containerID]
	if !ok || !n.item.Container {
		s.mu.RUnlock()
		return backend.Page{}, fmt.Errorf("%w: %s", backend.ErrNoSuchContainer, containerID)
	}
	items := make([]*backend.Item, 0, len(n.children))
	for _, cid := range n.children {
		items = append(items, s.view(s.objects[cid]))
	}
	s.mu.RUnlock()

	if err := backend.SortItems(items, sort); err != nil {
		return backend.Page{}, err
	}
	return backend.Page{Items: backend.Window(items, start, count), Total: len(items)}, nil
}

// GetItem implements backend.Backend.
func (s *Store) GetItem(ctx context.Context, id string) (*backend.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNoSuchObject, id)
	}
	return s.view(n), nil
}

// Search implements backend.Searcher. Matches are collected depth first in
// child order, excluding the container itself.
func (s *Store) Search(ctx context.Context, containerID, query string, start, count int, sort []backend.SortKey) (backend.Page, error) {
	crit, err := backend.ParseCriteria(query)
	if err != nil {
		return backend.Page{}, err
	}
	if err := crit.Supported(searchCapabilities); err != nil {
		return backend.Page{}, err
	}

	s.mu.RLock()
	n, ok := s.objects[containerID]
	if !ok || !n.item.Container {
		s.mu.RUnlock()
		return backend.Page{}, fmt.Errorf("%w: %s", backend.ErrNoSuchContainer, containerID)
	}
	var matches []*backend.Item
	var walk func(n *node) error
	walk = func(n *node) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, cid := range n.children {
			c := s.objects[cid]
			v := s.view(c)
			if crit.Match(v) {
				matches = append(matches, v)
			}
			if c.item.Container {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	err = walk(n)
	s.mu.RUnlock()
	if err != nil {
		return backend.Page{}, err
	}

	if err := backend.SortItems(matches, sort); err != nil {
		return backend.Page{}, err
	}
	return backend.Page{Items: backend.Window(matches, start, count), Total: len(matches)}, nil
}

// SearchCapabilities implements backend.Searcher.
func (s *Store) SearchCapabilities() []string {
	return append([]string(nil), searchCapabilities...)
}

// SortCapabilities implements backend.Sorter.
func (s *Store) SortCapabilities() []string {
	return append([]string(nil), backend.SortProperties...)
}

// ProtocolInfo implements backend.Formats.
func (s *Store) ProtocolInfo(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, n := range s.objects {
		for _, r := range n.item.Resources {
			if r.ProtocolInfo == "" || seen[r.ProtocolInfo] {
				continue
			}
			seen[r.ProtocolInfo] = true
			out = append(out, r.ProtocolInfo)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Watch implements backend.Notifier.
func (s *Store) Watch(fn func(backend.Change)) {
	s.watchMu.Lock()
	s.watchers = append(s.watchers, fn)
	s.watchMu.Unlock()
}

func (s *Store) notify(change backend.Change) {
	s.watchMu.Lock()
	watchers := slices.Clone(s.watchers)
	s.watchMu.Unlock()

	for _, fn := range watchers {
		fn(change)
	}
}

// CreateObject implements backend.Writer.
func (s *Store) CreateObject(ctx context.Context, containerID string, item *backend.Item) (*backend.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return nil, backend.ErrWriteNotSupported
	}
	if parent, ok := s.objects[containerID]; ok && parent.item.Restricted && containerID != s.root {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", backend.ErrRestrictedObject, containerID)
	}
	c := item.Clone()
	c.ID = ""
	c.ParentID = containerID
	id, change, err := s.addLocked(c)
	var created *backend.Item
	if err == nil {
		created = s.view(s.objects[id])
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.notify(change)
	return created, nil
}

// DestroyObject implements backend.Writer.
func (s *Store) DestroyObject(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return backend.ErrWriteNotSupported
	}
	if n, ok := s.objects[id]; ok && n.item.Restricted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", backend.ErrRestrictedObject, id)
	}
	change, err := s.removeLocked(id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(change)
	return nil
}
