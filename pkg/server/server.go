package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/upnp-media/upnp-go/pkg/backend"
	"github.com/upnp-media/upnp-go/pkg/connectionmanager"
	"github.com/upnp-media/upnp-go/pkg/contentdirectory"
	"github.com/upnp-media/upnp-go/pkg/description"
	"github.com/upnp-media/upnp-go/pkg/gena"
	"github.com/upnp-media/upnp-go/pkg/log"
	"github.com/upnp-media/upnp-go/pkg/metrics"
	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/persistence"
	"github.com/upnp-media/upnp-go/pkg/profile"
	"github.com/upnp-media/upnp-go/pkg/registry"
	"github.com/upnp-media/upnp-go/pkg/soap"
	"github.com/upnp-media/upnp-go/pkg/ssdp"
	"github.com/upnp-media/upnp-go/pkg/version"
)

// formatsTimeout bounds one collection of backend protocolInfo.
const formatsTimeout = 5 * time.Second

// MediaServer publishes a MediaServer:1 device over SSDP and HTTP.
type MediaServer struct {
	config  Config
	logger  *slog.Logger
	loggers Loggers
	plog    log.Logger
	metrics *metrics.Metrics
	tracker *persistence.Tracker
	server  string

	device     *model.Device
	registry   *registry.Registry
	cds        *contentdirectory.Service
	cm         *connectionmanager.Service
	dispatcher *soap.Dispatcher
	events     *gena.Manager
	handler    http.Handler

	// refresh coalesces content changes into one SourceProtocolInfo update.
	refresh chan struct{}

	mu         sync.RWMutex
	state      State
	engine     *ssdp.Engine
	httpServer *http.Server
	addr       *net.TCPAddr
	host       string
	handle     registry.Handle
	registered bool
	cancel     context.CancelFunc
	group      *errgroup.Group
}

// New builds the device tree and the protocol handlers. Nothing is bound
// until Start.
func New(config Config) (*MediaServer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.DeviceName == "" {
		config.DeviceName = DefaultDeviceName
	}
	if config.FriendlyName == "" {
		config.FriendlyName = DefaultFriendlyName
	}
	if config.DLNADoc == "" {
		config.DLNADoc = DefaultDLNADoc
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &MediaServer{
		config:  config,
		logger:  logger,
		loggers: subsystemLoggers(logger, config.Loggers),
		plog:    log.OrNoop(config.ProtocolLogger),
		server:  version.ServerHeader(),
		refresh: make(chan struct{}, 1),
	}
	if config.EnableMetrics {
		s.metrics = metrics.New()
	}

	udn := config.UDN
	var initialUpdateID uint32
	if config.StateFile != "" {
		tracker, err := persistence.OpenTracker(persistence.NewStateStore(config.StateFile), persistence.TrackerConfig{
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open state: %w", err)
		}
		s.tracker = tracker
		initialUpdateID = tracker.SystemUpdateID()
		if udn == "" {
			if udn, err = tracker.UDN(config.DeviceName); err != nil {
				return nil, fmt.Errorf("persist UDN: %w", err)
			}
		}
	}
	if udn == "" {
		udn = model.NewUDN()
	}

	var err error
	s.cds, err = contentdirectory.New(contentdirectory.Config{
		Backends:              config.Backends,
		ModerationInterval:    config.ModerationInterval,
		InitialSystemUpdateID: initialUpdateID,
		Logger:                s.loggers.CDS,
		Metrics:               s.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("content directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), formatsTimeout)
	formats := s.collectFormats(ctx)
	cancel()
	s.cm, err = connectionmanager.New(connectionmanager.Config{
		SourceProtocolInfo: formats,
		Logger:             s.loggers.CDS,
	})
	if err != nil {
		return nil, fmt.Errorf("connection manager: %w", err)
	}

	s.device = model.NewDevice(udn, model.DeviceTypeMediaServer1, config.FriendlyName)
	s.device.SetInfo(deviceInfo(config.Info))
	for _, svc := range []*model.Service{s.cds.Service(), s.cm.Service()} {
		if err := s.device.AddService(svc); err != nil {
			return nil, err
		}
	}
	if err := profile.CheckDevice(s.device); err != nil {
		return nil, err
	}

	s.registry = registry.New(registry.Config{Logger: logger})
	s.dispatcher = soap.NewDispatcher(s.registry, soap.Config{
		ActionTimeout:  config.ActionTimeout,
		Logger:         s.loggers.SOAP,
		ProtocolLogger: config.ProtocolLogger,
		Metrics:        s.metrics,
	})

	eventing := config.Eventing
	if eventing.Logger == nil {
		eventing.Logger = s.loggers.GENA
	}
	if eventing.ProtocolLogger == nil {
		eventing.ProtocolLogger = config.ProtocolLogger
	}
	if eventing.Metrics == nil {
		eventing.Metrics = s.metrics
	}
	s.events = gena.NewManager(eventing)
	for _, svc := range s.device.AllServices() {
		svc.Subscribe(s.events)
	}

	s.handler = s.routes(description.NewHandler(s.registry, description.Config{
		Server:  s.server,
		Options: description.Options{DLNADoc: config.DLNADoc},
		Logger:  s.loggers.HTTP,
	}))

	s.cds.OnSystemUpdateID(s.contentChanged)
	s.registry.OnRegistered(s.deviceRegistered)
	s.registry.OnUnregistered(s.deviceUnregistered)
	return s, nil
}

func subsystemLoggers(base *slog.Logger, l Loggers) Loggers {
	pick := func(sub *slog.Logger, name string) *slog.Logger {
		if sub != nil {
			return sub
		}
		return base.With("component", name)
	}
	return Loggers{
		SSDP: pick(l.SSDP, "ssdp"),
		SOAP: pick(l.SOAP, "soap"),
		GENA: pick(l.GENA, "gena"),
		CDS:  pick(l.CDS, "cds"),
		HTTP: pick(l.HTTP, "http"),
	}
}

func deviceInfo(info model.DeviceInfo) model.DeviceInfo {
	if info.Manufacturer == "" {
		info.Manufacturer = version.Product
	}
	if info.ModelName == "" {
		info.ModelName = version.Product
	}
	if info.ModelNumber == "" {
		info.ModelNumber = version.ProductVersion
	}
	return info
}

// Start binds the HTTP listener, starts eventing and SSDP, and registers
// the device. A configured port that cannot be bound falls back to an OS
// chosen one; SSDP socket failures disable advertising only.
func (s *MediaServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	ln, err := s.listen()
	if err != nil {
		s.setState(StateIdle)
		return err
	}
	addr := ln.Addr().(*net.TCPAddr)

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	httpServer := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.loggers.HTTP.Handler(), slog.LevelWarn),
	}
	g.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.refreshLoop(gctx)
		return nil
	})

	s.events.Start(runCtx)
	engine := s.startSSDP(runCtx)

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = addr
	s.host = s.advertiseHost()
	s.engine = engine
	s.cancel = cancel
	s.group = g
	s.mu.Unlock()

	handle, err := s.registry.Register(s.device)
	if err != nil {
		cancel()
		_ = httpServer.Close()
		s.events.Stop()
		if engine != nil {
			engine.Stop()
		}
		_ = g.Wait()
		s.setState(StateIdle)
		return fmt.Errorf("register device: %w", err)
	}

	s.mu.Lock()
	s.handle = handle
	s.registered = true
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("media server started",
		"udn", s.device.UDN(),
		"location", s.Location(),
		"ssdp", engine != nil)
	return nil
}

func (s *MediaServer) listen() (net.Listener, error) {
	addr := net.JoinHostPort("", strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err == nil || s.config.Port == 0 {
		return ln, err
	}
	s.logger.Error("HTTP port unavailable, using an ephemeral port", "port", s.config.Port, "error", err)
	return net.Listen("tcp", ":0")
}

func (s *MediaServer) startSSDP(ctx context.Context) *ssdp.Engine {
	if s.config.DisableSSDP {
		return nil
	}
	conns := s.config.SSDPConns
	if len(conns) == 0 {
		c, err := ssdp.ListenIPv4(s.config.Interface)
		if err != nil {
			s.loggers.SSDP.Error("SSDP disabled: cannot join multicast group", "interface", s.config.Interface, "error", err)
			return nil
		}
		conns = append(conns, c)
		if s.config.IPv6 {
			if c6, err := ssdp.ListenIPv6(s.config.Interface); err != nil {
				s.loggers.SSDP.Error("IPv6 SSDP disabled", "interface", s.config.Interface, "error", err)
			} else {
				conns = append(conns, c6)
			}
		}
	}

	cfg := s.config.SSDP
	if cfg.Server == "" {
		cfg.Server = s.server
	}
	if cfg.Logger == nil {
		cfg.Logger = s.loggers.SSDP
	}
	if cfg.ProtocolLogger == nil {
		cfg.ProtocolLogger = s.config.ProtocolLogger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = s.metrics
	}
	engine := ssdp.NewEngine(cfg, conns...)
	if err := engine.Start(ctx); err != nil {
		s.loggers.SSDP.Error("SSDP disabled", "error", err)
		for _, c := range conns {
			_ = c.Close()
		}
		return nil
	}
	return engine
}

// advertiseHost returns the address placed in LOCATION headers.
func (s *MediaServer) advertiseHost() string {
	if s.config.Host != "" {
		return s.config.Host
	}
	var ifaces []net.Interface
	if s.config.Interface != "" {
		if iface, err := net.InterfaceByName(s.config.Interface); err == nil {
			ifaces = append(ifaces, *iface)
		}
	} else if all, err := net.Interfaces(); err == nil {
		ifaces = all
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
				return ipn.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

// Stop unregisters the device, sending byebye and ending subscriptions,
// then shuts the listeners down. Pending state is written out.
func (s *MediaServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	handle, registered := s.handle, s.registered
	s.registered = false
	engine, httpServer, cancel, group := s.engine, s.httpServer, s.cancel, s.group
	s.mu.Unlock()

	var errs []error
	if registered {
		if err := s.registry.Unregister(handle); err != nil {
			errs = append(errs, err)
		}
	}

	var stop errgroup.Group
	if engine != nil {
		stop.Go(func() error {
			engine.Stop()
			return nil
		})
	}
	stop.Go(func() error {
		s.events.Stop()
		return nil
	})
	stop.Go(func() error {
		s.cds.Close()
		return nil
	})
	stop.Go(func() error {
		return httpServer.Shutdown(ctx)
	})
	if err := stop.Wait(); err != nil {
		errs = append(errs, err)
	}

	cancel()
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}
	if s.tracker != nil {
		if err := s.tracker.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("save state: %w", err))
		}
	}

	s.setState(StateStopped)
	s.logger.Info("media server stopped", "udn", s.device.UDN())
	return errors.Join(errs...)
}

func (s *MediaServer) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *MediaServer) deviceRegistered(root *model.Device) {
	s.logDevice(root.UDN(), "", "REGISTERED")
	s.mu.RLock()
	engine := s.engine
	location := s.locationLocked(root.UDN())
	s.mu.RUnlock()
	if engine == nil {
		return
	}
	if err := engine.Advertise(root, location); err != nil {
		s.loggers.SSDP.Error("advertise failed", "udn", root.UDN(), "error", err)
	}
}

func (s *MediaServer) deviceUnregistered(root *model.Device) {
	s.logDevice(root.UDN(), "REGISTERED", "UNREGISTERED")
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	if engine != nil {
		if err := engine.Withdraw(root.UDN()); err != nil {
			s.loggers.SSDP.Warn("withdraw failed", "udn", root.UDN(), "error", err)
		}
	}
	for _, svc := range root.AllServices() {
		s.events.CancelService(svc)
	}
}

func (s *MediaServer) logDevice(udn, old, state string) {
	s.plog.Log(log.Event{
		Timestamp: time.Now(),
		Protocol:  log.ProtocolSSDP,
		Category:  log.CategoryState,
		UDN:       udn,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDevice,
			OldState: old,
			NewState: state,
		},
	})
}

// contentChanged runs for every new SystemUpdateID.
func (s *MediaServer) contentChanged(id uint32) {
	if s.tracker != nil {
		s.tracker.SetSystemUpdateID(id)
	}
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// refreshLoop republishes SourceProtocolInfo after content changes.
func (s *MediaServer) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.refresh:
		}
		fctx, cancel := context.WithTimeout(ctx, formatsTimeout)
		formats := s.collectFormats(fctx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err := s.cm.SetSourceProtocolInfo(formats); err != nil {
			s.loggers.CDS.Warn("updating SourceProtocolInfo", "error", err)
		}
	}
}

// collectFormats returns the union of the backends' protocolInfo.
func (s *MediaServer) collectFormats(ctx context.Context) []string {
	var out []string
	for _, h := range s.config.Backends {
		f, ok := h.Backend.(backend.Formats)
		if !ok {
			continue
		}
		entries, err := f.ProtocolInfo(ctx)
		if err != nil {
			s.loggers.CDS.Warn("listing backend formats", "backend", h.Name, "error", err)
			continue
		}
		out = append(out, entries...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// State returns the lifecycle state.
func (s *MediaServer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Addr returns the bound HTTP address, or nil before Start.
func (s *MediaServer) Addr() *net.TCPAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// URL returns the advertised base URL, or "" before Start.
func (s *MediaServer) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURLLocked()
}

func (s *MediaServer) baseURLLocked() string {
	if s.addr == nil {
		return ""
	}
	return "http://" + net.JoinHostPort(s.host, strconv.Itoa(s.addr.Port))
}

// Location returns the advertised description URL of the root device.
func (s *MediaServer) Location() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locationLocked(s.device.UDN())
}

func (s *MediaServer) locationLocked(udn string) string {
	base := s.baseURLLocked()
	if base == "" {
		return ""
	}
	return base + s.registry.DescriptionURL(udn)
}

// Device returns the root device.
func (s *MediaServer) Device() *model.Device {
	return s.device
}

// Registry returns the device registry.
func (s *MediaServer) Registry() *registry.Registry {
	return s.registry
}

// ContentDirectory returns the ContentDirectory service.
func (s *MediaServer) ContentDirectory() *contentdirectory.Service {
	return s.cds
}

// ConnectionManager returns the ConnectionManager service.
func (s *MediaServer) ConnectionManager() *connectionmanager.Service {
	return s.cm
}

// Dispatcher returns the SOAP dispatcher.
func (s *MediaServer) Dispatcher() *soap.Dispatcher {
	return s.dispatcher
}

// Events returns the GENA subscription manager.
func (s *MediaServer) Events() *gena.Manager {
	return s.events
}

// Engine returns the SSDP engine, or nil when SSDP is disabled or the
// server is not running.
func (s *MediaServer) Engine() *ssdp.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Metrics returns the metric set, or nil when metrics are disabled.
func (s *MediaServer) Metrics() *metrics.Metrics {
	return s.metrics
}

// Handler returns the HTTP handler serving descriptions, control and
// eventing.
func (s *MediaServer) Handler() http.Handler {
	return s.handler
}
