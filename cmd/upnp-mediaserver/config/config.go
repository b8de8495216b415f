// Package config reads the upnp-mediaserver YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/upnp-media/upnp-go/pkg/gena"
	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/server"
	"github.com/upnp-media/upnp-go/pkg/ssdp"
)

// ErrInvalid is returned by Validate; the wrapped errors name every
// problem found.
var ErrInvalid = errors.New("invalid configuration")

// Subsystems that accept their own log level.
var Subsystems = []string{"ssdp", "soap", "gena", "cds", "http"}

// File is the on-disk configuration.
type File struct {
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Eventing  Eventing  `yaml:"eventing"`
	SSDP      SSDP      `yaml:"ssdp"`
	Backends  []Backend `yaml:"backends"`
	StateFile string    `yaml:"state_file"`
}

// Server holds device identity and HTTP settings.
type Server struct {
	Name         string        `yaml:"name"`
	FriendlyName string        `yaml:"friendly_name"`
	UDN          string        `yaml:"udn"`
	Manufacturer string        `yaml:"manufacturer"`
	ModelName    string        `yaml:"model_name"`
	SerialNumber string        `yaml:"serial_number"`
	Interface    string        `yaml:"interface"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	IPv6         bool          `yaml:"ipv6"`
	DisableSSDP  bool          `yaml:"disable_ssdp"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Metrics      bool          `yaml:"metrics"`

	// ActionTimeout bounds one SOAP action.
	ActionTimeout time.Duration `yaml:"action_timeout"`

	// Moderation spaces ContentDirectory update events.
	Moderation time.Duration `yaml:"moderation"`
}

// Log configures operational and protocol logging.
type Log struct {
	// Level is the default level: debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is console or json.
	Format string `yaml:"format"`

	// Levels overrides Level per subsystem.
	Levels map[string]string `yaml:"levels"`

	// Protocol is the path of the CBOR protocol capture. Empty disables it.
	Protocol string `yaml:"protocol"`
}

// Eventing tunes GENA.
type Eventing struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	QueueSize        int           `yaml:"queue_size"`
	DefaultTimeout   time.Duration `yaml:"default_timeout"`
	MaxTimeout       time.Duration `yaml:"max_timeout"`
	DeliveryTimeout  time.Duration `yaml:"delivery_timeout"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	MaxSubscriptions int           `yaml:"max_subscriptions"`
}

// SSDP tunes discovery.
type SSDP struct {
	MaxAge       time.Duration `yaml:"max_age"`
	Jitter       *float64      `yaml:"jitter"`
	DedupeWindow time.Duration `yaml:"dedupe_window"`
	SearchRate   float64       `yaml:"search_rate"`
	SearchBurst  int           `yaml:"search_burst"`
}

// Backend declares one content store.
type Backend struct {
	Name   string            `yaml:"name"`
	Kind   string            `yaml:"kind"`
	Params map[string]string `yaml:"params"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{
		Server: Server{
			Name: server.DefaultDeviceName,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads and validates a configuration file. Fields missing from the
// file keep the values of Default.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration data.
func Parse(data []byte) (*File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the configuration. All problems are reported together.
func (f *File) Validate() error {
	var errs []error
	if f.Server.Port < 0 || f.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", f.Server.Port))
	}
	if _, err := ParseLevel(f.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	for name, level := range f.Log.Levels {
		if !knownSubsystem(name) {
			errs = append(errs, fmt.Errorf("log.levels: unknown subsystem %q", name))
		}
		if _, err := ParseLevel(level); err != nil {
			errs = append(errs, fmt.Errorf("log.levels.%s: %w", name, err))
		}
	}
	switch f.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", f.Log.Format))
	}
	if j := f.SSDP.Jitter; j != nil && (*j < 0 || *j >= 1) {
		errs = append(errs, fmt.Errorf("ssdp.jitter %v must be in [0, 1)", *j))
	}
	if f.Eventing.FailureThreshold < 0 {
		errs = append(errs, errors.New("eventing.failure_threshold must not be negative"))
	}
	if f.Eventing.QueueSize < 0 {
		errs = append(errs, errors.New("eventing.queue_size must not be negative"))
	}
	if len(f.Backends) == 0 {
		errs = append(errs, errors.New("at least one backend is required"))
	}
	seen := make(map[string]bool)
	for i, b := range f.Backends {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("backends[%d]: name is required", i))
		} else if seen[b.Name] {
			errs = append(errs, fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true
		if b.Kind == "" {
			errs = append(errs, fmt.Errorf("backends[%d]: kind is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func knownSubsystem(name string) bool {
	for _, s := range Subsystems {
		if s == name {
			return true
		}
	}
	return false
}

// ParseLevel parses a log level name. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", s)
	}
}

// ServerConfig maps the file onto a server configuration. Backends,
// loggers and protocol capture are attached by the caller.
func (f *File) ServerConfig() server.Config {
	cfg := server.Config{
		DeviceName:   f.Server.Name,
		FriendlyName: f.Server.FriendlyName,
		UDN:          f.Server.UDN,
		Info: model.DeviceInfo{
			Manufacturer: f.Server.Manufacturer,
			ModelName:    f.Server.ModelName,
			SerialNumber: f.Server.SerialNumber,
		},
		Interface:          f.Server.Interface,
		Host:               f.Server.Host,
		Port:               f.Server.Port,
		IPv6:               f.Server.IPv6,
		DisableSSDP:        f.Server.DisableSSDP,
		ReadTimeout:        f.Server.ReadTimeout,
		WriteTimeout:       f.Server.WriteTimeout,
		ActionTimeout:      f.Server.ActionTimeout,
		ModerationInterval: f.Server.Moderation,
		EnableMetrics:      f.Server.Metrics,
		StateFile:          f.StateFile,
		SSDP: ssdp.Config{
			MaxAge:       f.SSDP.MaxAge,
			DedupeWindow: f.SSDP.DedupeWindow,
			SearchBurst:  f.SSDP.SearchBurst,
		},
		Eventing: gena.Config{
			FailureThreshold: f.Eventing.FailureThreshold,
			QueueSize:        f.Eventing.QueueSize,
			DefaultTimeout:   f.Eventing.DefaultTimeout,
			MaxTimeout:       f.Eventing.MaxTimeout,
			DeliveryTimeout:  f.Eventing.DeliveryTimeout,
			RetryDelay:       f.Eventing.RetryDelay,
			MaxSubscriptions: f.Eventing.MaxSubscriptions,
		},
	}
	if f.SSDP.Jitter != nil {
		cfg.SSDP.Jitter = *f.SSDP.Jitter
	} else {
		cfg.SSDP.Jitter = ssdp.DefaultJitter
	}
	if f.SSDP.SearchRate > 0 {
		cfg.SSDP.SearchRate = rate.Limit(f.SSDP.SearchRate)
	}
	return cfg
}
