package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Device errors.
var (
	ErrServiceNotFound  = errors.New("service not found")
	ErrDuplicateService = errors.New("duplicate service id")
	ErrDuplicateUDN     = errors.New("duplicate UDN in device tree")
	ErrDeviceCycle      = errors.New("device embedding would create a cycle")
)

// NewUDN returns a fresh unique device name.
func NewUDN() string {
	return "uuid:" + uuid.New().String()
}

// DeviceInfo holds the descriptive fields published in the device
// description document.
type DeviceInfo struct {
	Manufacturer     string
	ManufacturerURL  string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	ModelURL         string
	SerialNumber     string
	PresentationURL  string
}

// Device represents a UPnP device with its services and embedded devices.
// A device owns its children exclusively; parent lookups are served by the
// registry.
type Device struct {
	mu sync.RWMutex

	udn          string
	deviceType   string
	friendlyName string
	info         DeviceInfo

	embedded []*Device
	services []*Service
}

// NewDevice creates a new device.
func NewDevice(udn, deviceType, friendlyName string) *Device {
	return &Device{
		udn:          udn,
		deviceType:   deviceType,
		friendlyName: friendlyName,
	}
}

// UDN returns the unique device name.
func (d *Device) UDN() string {
	return d.udn
}

// Type returns the device type URN.
func (d *Device) Type() string {
	return d.deviceType
}

// FriendlyName returns the human-readable name.
func (d *Device) FriendlyName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.friendlyName
}

// SetFriendlyName sets the human-readable name.
func (d *Device) SetFriendlyName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.friendlyName = name
}

// Info returns the descriptive fields.
func (d *Device) Info() DeviceInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// SetInfo sets the descriptive fields.
func (d *Device) SetInfo(info DeviceInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = info
}

// AddService adds a service to the device.
// Returns an error if a service with the same id already exists.
func (d *Device) AddService(svc *Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.services {
		if existing.ID() == svc.ID() {
			return fmt.Errorf("%w: %s", ErrDuplicateService, svc.ID())
		}
	}
	d.services = append(d.services, svc)
	return nil
}

// Service returns a service by id.
func (d *Device) Service(serviceID string) (*Service, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, svc := range d.services {
		if svc.ID() == serviceID {
			return svc, nil
		}
	}
	return nil, ErrServiceNotFound
}

// Services returns the services in declared order.
func (d *Device) Services() []*Service {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Service, len(d.services))
	copy(out, d.services)
	return out
}

// AddEmbedded embeds child in this device. The child must not already be
// part of this tree and no UDN may repeat.
func (d *Device) AddEmbedded(child *Device) error {
	if child == d || child.contains(d) {
		return ErrDeviceCycle
	}

	seen := make(map[string]bool)
	_ = d.Walk(func(dev *Device) error {
		seen[dev.UDN()] = true
		return nil
	})
	if err := child.Walk(func(dev *Device) error {
		if seen[dev.UDN()] {
			return fmt.Errorf("%w: %s", ErrDuplicateUDN, dev.UDN())
		}
		return nil
	}); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.embedded = append(d.embedded, child)
	return nil
}

// Embedded returns the directly embedded devices in declared order.
func (d *Device) Embedded() []*Device {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Device, len(d.embedded))
	copy(out, d.embedded)
	return out
}

func (d *Device) contains(target *Device) bool {
	found := false
	_ = d.Walk(func(dev *Device) error {
		if dev == target {
			found = true
			return errStopWalk
		}
		return nil
	})
	return found
}

var errStopWalk = errors.New("stop walk")

// Walk visits the device and its embedded devices depth-first, parents
// before children. A non-nil error from fn stops the walk and is returned.
func (d *Device) Walk(fn func(dev *Device) error) error {
	err := d.walk(fn)
	if errors.Is(err, errStopWalk) {
		return nil
	}
	return err
}

func (d *Device) walk(fn func(dev *Device) error) error {
	if err := fn(d); err != nil {
		return err
	}
	for _, child := range d.Embedded() {
		if err := child.walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// AllServices returns every service in the tree, in walk order.
func (d *Device) AllServices() []*Service {
	var out []*Service
	_ = d.Walk(func(dev *Device) error {
		out = append(out, dev.Services()...)
		return nil
	})
	return out
}
