package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/upnp-media/upnp-go/pkg/backend"
	"github.com/upnp-media/upnp-go/pkg/gena"
	"github.com/upnp-media/upnp-go/pkg/log"
	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/ssdp"
)

// Server errors.
var (
	ErrNotStarted     = errors.New("server not started")
	ErrAlreadyStarted = errors.New("server already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// State represents the server lifecycle state.
type State uint8

const (
	// StateIdle - server created but not started.
	StateIdle State = iota

	// StateStarting - server is starting up.
	StateStarting

	// StateRunning - server is serving HTTP and advertising.
	StateRunning

	// StateStopping - server is shutting down.
	StateStopping

	// StateStopped - server has stopped. It cannot be restarted.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Default server parameters.
const (
	DefaultDeviceName   = "mediaserver"
	DefaultFriendlyName = "upnp-go Media Server"
	DefaultDLNADoc      = "DMS-1.50"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
)

// Loggers holds per-subsystem loggers. Nil entries fall back to the
// server's Logger tagged with the subsystem name.
type Loggers struct {
	SSDP *slog.Logger
	SOAP *slog.Logger
	GENA *slog.Logger
	CDS  *slog.Logger
	HTTP *slog.Logger
}

// Config configures a MediaServer.
type Config struct {
	// DeviceName keys the persisted UDN. Zero uses DefaultDeviceName.
	DeviceName string

	// FriendlyName is published in the device description.
	FriendlyName string

	// UDN overrides the persisted or generated UDN.
	UDN string

	// Info holds the descriptive fields of the device description.
	Info model.DeviceInfo

	// DLNADoc is the X_DLNADOC value. Zero uses DefaultDLNADoc.
	DLNADoc string

	// Interface restricts SSDP and the advertised address to one network
	// interface. Empty uses all multicast capable interfaces.
	Interface string

	// Host is the address advertised in LOCATION headers. Empty picks an
	// address of Interface.
	Host string

	// Port is the HTTP port. Zero lets the OS choose; a configured port
	// that cannot be bound falls back to an OS chosen one.
	Port int

	// IPv6 adds an SSDP socket on the IPv6 site-local group.
	IPv6 bool

	// DisableSSDP serves HTTP without advertising.
	DisableSSDP bool

	// SSDPConns replaces the multicast sockets, mainly for tests.
	SSDPConns []ssdp.Conn

	// SSDP and Eventing tune the protocol engines. Zero fields take the
	// packages' defaults.
	SSDP     ssdp.Config
	Eventing gena.Config

	// Backends are the content stores, in presentation order.
	Backends []*backend.Handle

	// ModerationInterval spaces ContentDirectory update events.
	ModerationInterval time.Duration

	// ActionTimeout bounds one SOAP action.
	ActionTimeout time.Duration

	// HTTP server timeouts. Zero uses the defaults.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// StateFile persists the UDN and SystemUpdateID. Empty disables
	// persistence.
	StateFile string

	// EnableMetrics serves Prometheus metrics at /metrics.
	EnableMetrics bool

	// Logger is used for operational logging. Nil disables logging.
	Logger *slog.Logger

	// Loggers override the logger per subsystem.
	Loggers Loggers

	// ProtocolLogger captures SSDP, SOAP and GENA traffic.
	ProtocolLogger log.Logger
}

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Backends) == 0 {
		errs = append(errs, errors.New("no backends configured"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.UDN != "" && (!strings.HasPrefix(c.UDN, "uuid:") || len(c.UDN) == len("uuid:")) {
		errs = append(errs, fmt.Errorf("UDN %q must be uuid:<id>", c.UDN))
	}
	for i, h := range c.Backends {
		if h == nil || h.Backend == nil {
			errs = append(errs, fmt.Errorf("backend %d has no implementation", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
