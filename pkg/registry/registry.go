package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/upnp-media/upnp-go/pkg/model"
)

// Registry errors.
var (
	ErrDuplicateUDN = errors.New("duplicate UDN")
	ErrNotFound     = errors.New("not found")
)

// DuplicateUDNError reports the UDN that is already registered.
type DuplicateUDNError struct {
	UDN string
}

func (e *DuplicateUDNError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateUDN, e.UDN)
}

// Unwrap lets errors.Is match ErrDuplicateUDN.
func (e *DuplicateUDNError) Unwrap() error {
	return ErrDuplicateUDN
}

// Handle identifies one registration. The zero Handle is never valid.
type Handle struct {
	id  uint64
	udn string
}

// UDN returns the root device UDN of the registration.
func (h Handle) UDN() string {
	return h.udn
}

// ServiceEntry is a registered service with its HTTP endpoints.
type ServiceEntry struct {
	Device  *model.Device
	Service *model.Service

	SCPDURL    string
	ControlURL string
	EventURL   string
}

// Config configures a Registry.
type Config struct {
	// URLPrefix is the path under which device and service endpoints live.
	URLPrefix string

	// Logger is used for registration events. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{URLPrefix: "/dev"}
}

type registration struct {
	handle   Handle
	root     *model.Device
	services []*ServiceEntry
}

// Registry is the in-memory set of devices this instance publishes.
// It performs no protocol I/O.
type Registry struct {
	mu     sync.RWMutex
	config Config
	logger *slog.Logger
	nextID atomic.Uint64

	registrations map[uint64]*registration
	devices       map[string]*model.Device // by UDN, every device in every tree
	parents       map[string]string        // child UDN -> parent UDN
	byControl     map[string]*ServiceEntry
	byEvent       map[string]*ServiceEntry
	bySCPD        map[string]*ServiceEntry

	onRegistered   func(root *model.Device)
	onUnregistered func(root *model.Device)
}

// New creates an empty registry.
func New(config Config) *Registry {
	if config.URLPrefix == "" {
		config.URLPrefix = DefaultConfig().URLPrefix
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		config:        config,
		logger:        logger,
		registrations: make(map[uint64]*registration),
		devices:       make(map[string]*model.Device),
		parents:       make(map[string]string),
		byControl:     make(map[string]*ServiceEntry),
		byEvent:       make(map[string]*ServiceEntry),
		bySCPD:        make(map[string]*ServiceEntry),
	}
}

// Register inserts a root device and its embedded devices and services.
// Returns a *DuplicateUDNError if any UDN in the tree is already registered.
func (r *Registry) Register(root *model.Device) (Handle, error) {
	r.mu.Lock()

	var dup string
	_ = root.Walk(func(d *model.Device) error {
		if _, exists := r.devices[d.UDN()]; exists {
			dup = d.UDN()
			return errDuplicate
		}
		return nil
	})
	if dup != "" {
		r.mu.Unlock()
		return Handle{}, &DuplicateUDNError{UDN: dup}
	}

	reg := &registration{
		handle: Handle{id: r.nextID.Add(1), udn: root.UDN()},
		root:   root,
	}
	r.insert(reg, root, "")
	r.registrations[reg.handle.id] = reg
	cb := r.onRegistered
	r.mu.Unlock()

	r.logger.Info("device registered", "udn", root.UDN(), "type", root.Type(), "services", len(reg.services))
	if cb != nil {
		cb(root)
	}
	return reg.handle, nil
}

var errDuplicate = errors.New("duplicate")

// insert adds d and its subtree. Called with mu held.
func (r *Registry) insert(reg *registration, d *model.Device, parent string) {
	r.devices[d.UDN()] = d
	if parent != "" {
		r.parents[d.UDN()] = parent
	}

	used := make(map[string]int)
	for _, svc := range d.Services() {
		name := shortServiceID(svc.ID())
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		base := r.serviceBase(d.UDN(), name)
		entry := &ServiceEntry{
			Device:     d,
			Service:    svc,
			SCPDURL:    base + "/desc.xml",
			ControlURL: base + "/control",
			EventURL:   base + "/event",
		}
		reg.services = append(reg.services, entry)
		r.byControl[entry.ControlURL] = entry
		r.byEvent[entry.EventURL] = entry
		r.bySCPD[entry.SCPDURL] = entry
	}

	for _, child := range d.Embedded() {
		r.insert(reg, child, d.UDN())
	}
}

// Unregister removes the device subtree registered under h.
// A second call with the same handle returns ErrNotFound.
func (r *Registry) Unregister(h Handle) error {
	r.mu.Lock()
	reg, exists := r.registrations[h.id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("registration %s: %w", h.udn, ErrNotFound)
	}

	delete(r.registrations, h.id)
	_ = reg.root.Walk(func(d *model.Device) error {
		delete(r.devices, d.UDN())
		delete(r.parents, d.UDN())
		return nil
	})
	for _, entry := range reg.services {
		delete(r.byControl, entry.ControlURL)
		delete(r.byEvent, entry.EventURL)
		delete(r.bySCPD, entry.SCPDURL)
	}
	cb := r.onUnregistered
	r.mu.Unlock()

	r.logger.Info("device unregistered", "udn", reg.root.UDN())
	if cb != nil {
		cb(reg.root)
	}
	return nil
}

// Resolve returns the service with the given id on the device with the
// given UDN.
func (r *Registry) Resolve(udn, serviceID string) (*model.Service, error) {
	r.mu.RLock()
	d, exists := r.devices[udn]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("device %s: %w", udn, ErrNotFound)
	}
	svc, err := d.Service(serviceID)
	if err != nil {
		return nil, fmt.Errorf("service %s on %s: %w", serviceID, udn, ErrNotFound)
	}
	return svc, nil
}

// ResolveControlURL maps a control URL path to its service.
func (r *Registry) ResolveControlURL(path string) (*ServiceEntry, error) {
	return r.lookup(r.byControl, path)
}

// ResolveEventURL maps an event subscription URL path to its service.
func (r *Registry) ResolveEventURL(path string) (*ServiceEntry, error) {
	return r.lookup(r.byEvent, path)
}

// ResolveSCPDURL maps a service description URL path to its service.
func (r *Registry) ResolveSCPDURL(path string) (*ServiceEntry, error) {
	return r.lookup(r.bySCPD, path)
}

func (r *Registry) lookup(index map[string]*ServiceEntry, path string) (*ServiceEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := index[path]
	if !exists {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return entry, nil
}

// ServiceEntries returns the service entries of a registered device tree,
// looked up by any UDN in it. Entries are in walk order.
func (r *Registry) ServiceEntries(rootUDN string) []*ServiceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reg := range r.registrations {
		if reg.root.UDN() == rootUDN {
			out := make([]*ServiceEntry, len(reg.services))
			copy(out, reg.services)
			return out
		}
	}
	return nil
}

// ServiceEntry returns the entry for one service.
func (r *Registry) ServiceEntry(svc *model.Service) (*ServiceEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.byControl {
		if entry.Service == svc {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("service %s: %w", svc.ID(), ErrNotFound)
}

// Device returns a registered device by UDN, root or embedded.
func (r *Registry) Device(udn string) (*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.devices[udn]
	if !exists {
		return nil, fmt.Errorf("device %s: %w", udn, ErrNotFound)
	}
	return d, nil
}

// Parent returns the UDN of the device that embeds udn.
// Root devices have no parent.
func (r *Registry) Parent(udn string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parents[udn]
	return p, ok
}

// Root follows parent links up to the root device of udn's tree.
func (r *Registry) Root(udn string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.devices[udn]; !exists {
		return "", fmt.Errorf("device %s: %w", udn, ErrNotFound)
	}
	for {
		p, ok := r.parents[udn]
		if !ok {
			return udn, nil
		}
		udn = p
	}
}

// Roots returns every registered root device.
func (r *Registry) Roots() []*model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Device, 0, len(r.registrations))
	for _, reg := range r.registrations {
		out = append(out, reg.root)
	}
	return out
}

// DeviceCount returns the number of registered devices, embedded included.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// DescriptionURL returns the path of the device description document for a
// root device.
func (r *Registry) DescriptionURL(rootUDN string) string {
	return r.config.URLPrefix + "/" + udnPath(rootUDN) + "/desc.xml"
}

// ParseDescriptionURL extracts the root UDN from a description URL path.
func (r *Registry) ParseDescriptionURL(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, r.config.URLPrefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/desc.xml")
	if !ok || strings.Contains(id, "/") {
		return "", false
	}
	id, err := url.PathUnescape(id)
	if err != nil {
		return "", false
	}
	return "uuid:" + id, true
}

func (r *Registry) serviceBase(udn, name string) string {
	return r.config.URLPrefix + "/" + udnPath(udn) + "/svc/" + url.PathEscape(name)
}

// OnRegistered sets a callback for when a device tree is registered.
func (r *Registry) OnRegistered(fn func(root *model.Device)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRegistered = fn
}

// OnUnregistered sets a callback for when a device tree is removed.
func (r *Registry) OnUnregistered(fn func(root *model.Device)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUnregistered = fn
}

func udnPath(udn string) string {
	return url.PathEscape(strings.TrimPrefix(udn, "uuid:"))
}

// shortServiceID returns the last component of a service id URN.
func shortServiceID(id string) string {
	if i := strings.LastIndexByte(id, ':'); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}
