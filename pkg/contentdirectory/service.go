package contentdirectory

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/upnp-media/upnp-go/pkg/backend"
	"github.com/upnp-media/upnp-go/pkg/metrics"
	"github.com/upnp-media/upnp-go/pkg/model"
)

// DefaultModerationInterval is the minimum spacing of ContainerUpdateIDs
// events.
const DefaultModerationInterval = 200 * time.Millisecond

// Browse flags.
const (
	BrowseMetadata       = "BrowseMetadata"
	BrowseDirectChildren = "BrowseDirectChildren"
)

// State variable names.
const (
	varSearchCapabilities = "SearchCapabilities"
	varSortCapabilities   = "SortCapabilities"
	varSystemUpdateID     = "SystemUpdateID"
	varContainerUpdateIDs = "ContainerUpdateIDs"
	argTypeObjectID       = "A_ARG_TYPE_ObjectID"
	argTypeResult         = "A_ARG_TYPE_Result"
	argTypeSearchCriteria = "A_ARG_TYPE_SearchCriteria"
	argTypeBrowseFlag     = "A_ARG_TYPE_BrowseFlag"
	argTypeFilter         = "A_ARG_TYPE_Filter"
	argTypeSortCriteria   = "A_ARG_TYPE_SortCriteria"
	argTypeIndex          = "A_ARG_TYPE_Index"
	argTypeCount          = "A_ARG_TYPE_Count"
	argTypeUpdateID       = "A_ARG_TYPE_UpdateID"
)

// Config configures the ContentDirectory service.
type Config struct {
	// Backends are the content stores, in presentation order. With more
	// than one, object ids are prefixed with the backend name.
	Backends []*backend.Handle

	// RootTitle names the virtual root container of a multi-backend tree.
	RootTitle string

	// ModerationInterval spaces ContainerUpdateIDs and SystemUpdateID
	// events. Zero uses DefaultModerationInterval; negative publishes
	// every change immediately.
	ModerationInterval time.Duration

	// InitialSystemUpdateID restores the counter across restarts.
	InitialSystemUpdateID uint32

	// Logger is used for operational logging. Nil disables logging.
	Logger *slog.Logger

	// Metrics records the system update id. Nil disables metrics.
	Metrics *metrics.Metrics
}

// Result is the outcome of a Browse or Search.
type Result struct {
	// Objects are the returned objects, already rewritten for the
	// ContentDirectory id space.
	Objects []*backend.Item

	// TotalMatches counts all objects the request matched.
	TotalMatches int

	// UpdateID is the SystemUpdateID the result reflects.
	UpdateID uint32
}

// Service is the ContentDirectory:1 service over a set of backends.
type Service struct {
	config  Config
	svc     *model.Service
	mounts  *mounts
	logger  *slog.Logger
	metrics *metrics.Metrics

	// flushMu keeps published update ids in order.
	flushMu sync.Mutex

	mu             sync.Mutex
	systemUpdateID uint32
	pending        []backend.Change // container changes not yet published
	timer          *time.Timer
	closed         bool
	onSystemUpdate func(uint32)
}

// New creates the service and subscribes to backends that report changes.
func New(config Config) (*Service, error) {
	if config.ModerationInterval == 0 {
		config.ModerationInterval = DefaultModerationInterval
	}
	if config.RootTitle == "" {
		config.RootTitle = "Root"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m, err := newMounts(config.Backends, config.RootTitle)
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:         config,
		mounts:         m,
		logger:         logger,
		metrics:        config.Metrics,
		systemUpdateID: config.InitialSystemUpdateID,
	}
	if s.svc, err = s.build(); err != nil {
		return nil, err
	}

	for _, h := range m.handles {
		if n, ok := h.Backend.(backend.Notifier); ok {
			n.Watch(func(c backend.Change) { s.contentChanged(h, c) })
		}
	}
	s.metrics.CDSUpdateID(s.systemUpdateID)
	return s, nil
}

// Service returns the UPnP service to add to the MediaServer device.
func (s *Service) Service() *model.Service {
	return s.svc
}

// SystemUpdateID returns the current system update id.
func (s *Service) SystemUpdateID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemUpdateID
}

// OnSystemUpdateID registers fn to be called with each new system update
// id, for persistence.
func (s *Service) OnSystemUpdateID(fn func(id uint32)) {
	s.mu.Lock()
	s.onSystemUpdate = fn
	s.mu.Unlock()
}

// Backends returns the mounted backends in presentation order.
func (s *Service) Backends() []*backend.Handle {
	return append([]*backend.Handle(nil), s.mounts.handles...)
}

// Close stops pending event moderation. Pending changes are published.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.flush()
}

// SearchCapabilities returns the union of the backends' searchable
// properties. Multi-backend trees prefix nothing: properties are global.
func (s *Service) SearchCapabilities() []string {
	var caps []string
	for _, h := range s.mounts.handles {
		if sr, ok := h.Backend.(backend.Searcher); ok {
			caps = append(caps, sr.SearchCapabilities()...)
		}
	}
	return uniqueSorted(caps)
}

// SortCapabilities returns the properties every backend can sort by. With a
// single backend these are its own capabilities.
func (s *Service) SortCapabilities() []string {
	var common map[string]bool
	for _, h := range s.mounts.handles {
		so, ok := h.Backend.(backend.Sorter)
		if !ok {
			return nil
		}
		caps := make(map[string]bool)
		for _, c := range so.SortCapabilities() {
			if common == nil || common[c] {
				caps[c] = true
			}
		}
		common = caps
	}
	out := make([]string, 0, len(common))
	for c := range common {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// writable reports whether any backend accepts CreateObject/DestroyObject.
func (s *Service) writable() bool {
	for _, h := range s.mounts.handles {
		if _, ok := h.Backend.(backend.Writer); ok {
			return true
		}
	}
	return false
}

// Browse returns an object's metadata or its direct children.
func (s *Service) Browse(ctx context.Context, objectID, flag string, start, count int, sortCriteria string) (*Result, error) {
	keys, err := backend.ParseSortCriteria(sortCriteria)
	if err != nil {
		return nil, err
	}
	updateID := s.SystemUpdateID()

	if flag == BrowseMetadata {
		if s.mounts.isVirtualRoot(objectID) {
			return &Result{Objects: []*backend.Item{s.mounts.virtualRoot()}, TotalMatches: 1, UpdateID: updateID}, nil
		}
		h, local, err := s.mounts.resolve(objectID)
		if err != nil {
			return nil, err
		}
		it, err := h.Backend.GetItem(ctx, local)
		if err != nil {
			return nil, err
		}
		return &Result{Objects: []*backend.Item{s.mounts.export(h, it)}, TotalMatches: 1, UpdateID: updateID}, nil
	}

	if s.mounts.isVirtualRoot(objectID) {
		roots, err := s.mounts.roots(ctx)
		if err != nil {
			return nil, err
		}
		if err := backend.SortItems(roots, keys); err != nil {
			return nil, err
		}
		return &Result{Objects: backend.Window(roots, start, count), TotalMatches: len(roots), UpdateID: updateID}, nil
	}

	h, local, err := s.mounts.resolve(objectID)
	if err != nil {
		return nil, err
	}
	page, err := h.Backend.ListChildren(ctx, local, start, count, keys)
	if err != nil {
		return nil, err
	}
	return &Result{Objects: s.mounts.exportAll(h, page.Items), TotalMatches: page.Total, UpdateID: updateID}, nil
}

// Search returns objects below containerID matching criteria. Backends
// without search support return backend.ErrSearchUnsupported.
func (s *Service) Search(ctx context.Context, containerID, criteria string, start, count int, sortCriteria string) (*Result, error) {
	keys, err := backend.ParseSortCriteria(sortCriteria)
	if err != nil {
		return nil, err
	}
	if _, err := backend.ParseCriteria(criteria); err != nil {
		return nil, err
	}
	updateID := s.SystemUpdateID()

	if !s.mounts.isVirtualRoot(containerID) {
		h, local, err := s.mounts.resolve(containerID)
		if err != nil {
			return nil, err
		}
		sr, ok := h.Backend.(backend.Searcher)
		if !ok {
			return nil, backend.ErrSearchUnsupported
		}
		page, err := sr.Search(ctx, local, criteria, start, count, keys)
		if err != nil {
			return nil, err
		}
		return &Result{Objects: s.mounts.exportAll(h, page.Items), TotalMatches: page.Total, UpdateID: updateID}, nil
	}

	// Across backends: gather every match, then order and window the union.
	var (
		all      []*backend.Item
		searched bool
	)
	for _, h := range s.mounts.handles {
		sr, ok := h.Backend.(backend.Searcher)
		if !ok {
			continue
		}
		searched = true
		page, err := sr.Search(ctx, h.Root(), criteria, 0, 0, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, s.mounts.exportAll(h, page.Items)...)
	}
	if !searched {
		return nil, backend.ErrSearchUnsupported
	}
	if err := backend.SortItems(all, keys); err != nil {
		return nil, err
	}
	return &Result{Objects: backend.Window(all, start, count), TotalMatches: len(all), UpdateID: updateID}, nil
}

// CreateObject adds an object described by a DIDL-Lite fragment below
// containerID.
func (s *Service) CreateObject(ctx context.Context, containerID string, item *backend.Item) (*backend.Item, error) {
	if s.mounts.isVirtualRoot(containerID) {
		return nil, backend.ErrRestrictedObject
	}
	h, local, err := s.mounts.resolve(containerID)
	if err != nil {
		return nil, err
	}
	w, ok := h.Backend.(backend.Writer)
	if !ok {
		return nil, backend.ErrWriteNotSupported
	}
	created, err := w.CreateObject(ctx, local, item)
	if err != nil {
		return nil, err
	}
	return s.mounts.export(h, created), nil
}

// DestroyObject removes an object.
func (s *Service) DestroyObject(ctx context.Context, objectID string) error {
	if s.mounts.isVirtualRoot(objectID) {
		return backend.ErrRestrictedObject
	}
	h, local, err := s.mounts.resolve(objectID)
	if err != nil {
		return err
	}
	w, ok := h.Backend.(backend.Writer)
	if !ok {
		return backend.ErrWriteNotSupported
	}
	return w.DestroyObject(ctx, local)
}

// contentChanged records a backend change for the next moderated event.
func (s *Service) contentChanged(h *backend.Handle, c backend.Change) {
	c.ContainerID = s.mounts.globalID(h, c.ContainerID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.systemUpdateID++
	id := s.systemUpdateID
	replaced := false
	for i := range s.pending {
		if s.pending[i].ContainerID == c.ContainerID {
			s.pending[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		s.pending = append(s.pending, c)
	}
	immediate := s.config.ModerationInterval < 0
	if !immediate && s.timer == nil {
		s.timer = time.AfterFunc(s.config.ModerationInterval, s.flush)
	}
	onUpdate := s.onSystemUpdate
	s.mu.Unlock()

	s.metrics.CDSUpdateID(id)
	s.logger.Debug("content changed", "container", c.ContainerID, "containerUpdateID", c.UpdateID, "systemUpdateID", id)
	if onUpdate != nil {
		onUpdate(id)
	}
	if immediate {
		s.flush()
	}
}

// flush publishes pending changes as one logical update.
func (s *Service) flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	s.timer = nil
	pending := s.pending
	s.pending = nil
	id := s.systemUpdateID
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	parts := make([]string, 0, 2*len(pending))
	for _, c := range pending {
		parts = append(parts, c.ContainerID, formatUint(c.UpdateID))
	}
	err := s.svc.Update(func(tx *model.Tx) error {
		if err := tx.Set(varSystemUpdateID, id); err != nil {
			return err
		}
		return tx.Set(varContainerUpdateIDs, strings.Join(parts, ","))
	})
	if err != nil {
		s.logger.Error("publishing update ids", "error", err)
	}
}
