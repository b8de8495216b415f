package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/upnp-media/upnp-go/cmd/upnp-mediaserver/config"
	"github.com/upnp-media/upnp-go/cmd/upnp-mediaserver/interactive"
	"github.com/upnp-media/upnp-go/cmd/upnp-mediaserver/logging"
	"github.com/upnp-media/upnp-go/pkg/backend"
	"github.com/upnp-media/upnp-go/pkg/backend/memory"
	"github.com/upnp-media/upnp-go/pkg/log"
	"github.com/upnp-media/upnp-go/pkg/server"
)

const shutdownTimeout = 10 * time.Second

// Serve command flags.
var (
	configPath  string
	port        int
	iface       string
	name        string
	friendly    string
	ipv6        bool
	noSSDP      bool
	logLevel    string
	logFormat   string
	protocolLog string
	trace       bool
	stateFile   string
	fixture     string
	metricsOn   bool
	interactOn  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the media server",
	Long: `Start the media server and advertise it on the local network.

Settings come from the --config file; flags override the file. Without a
config file a single in-memory backend named "library" is served, seeded
from --fixture when given.`,
	Example: `  # Serve a fixture library on port 8200
  upnp-mediaserver serve --fixture library.yaml --port 8200

  # Serve from a config file with SOAP debugging and a protocol capture
  upnp-mediaserver serve --config mediaserver.yaml --log-level debug --protocol-log upnp.cbor

  # Keep the device identity across restarts and open the console
  upnp-mediaserver serve --state-file state.json --interactive`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	f.IntVar(&port, "port", 0, "HTTP port (0 = OS chosen)")
	f.StringVar(&iface, "interface", "", "Network interface for SSDP and the advertised address")
	f.StringVar(&name, "name", "", "Device name keying the persisted identity")
	f.StringVar(&friendly, "friendly-name", "", "Friendly name shown by control points")
	f.BoolVar(&ipv6, "ipv6", false, "Also advertise on the IPv6 link-local group")
	f.BoolVar(&noSSDP, "no-ssdp", false, "Serve HTTP only, without SSDP advertising")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	f.StringVar(&protocolLog, "protocol-log", "", "Capture protocol events to this CBOR file")
	f.BoolVar(&trace, "trace", false, "Write protocol events to the operational log")
	f.StringVar(&stateFile, "state-file", "", "Persist UDN and SystemUpdateID to this file")
	f.StringVar(&fixture, "fixture", "", "YAML fixture for the default in-memory backend")
	f.BoolVar(&metricsOn, "metrics", false, "Expose Prometheus metrics on /metrics")
	f.BoolVarP(&interactOn, "interactive", "i", false, "Open the operator console")
}

func loadConfig(cmd *cobra.Command) (*config.File, error) {
	file := config.Default()
	if configPath != "" {
		var err error
		if file, err = config.Load(configPath); err != nil {
			return nil, err
		}
	} else {
		params := map[string]string{}
		if fixture != "" {
			params[memory.ParamFixture] = fixture
		}
		file.Backends = []config.Backend{{Name: "library", Kind: memory.Kind, Params: params}}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		file.Server.Port = port
	}
	if flags.Changed("interface") {
		file.Server.Interface = iface
	}
	if flags.Changed("name") {
		file.Server.Name = name
	}
	if flags.Changed("friendly-name") {
		file.Server.FriendlyName = friendly
	}
	if flags.Changed("ipv6") {
		file.Server.IPv6 = ipv6
	}
	if flags.Changed("no-ssdp") {
		file.Server.DisableSSDP = noSSDP
	}
	if flags.Changed("metrics") {
		file.Server.Metrics = metricsOn
	}
	if flags.Changed("log-level") {
		file.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		file.Log.Format = logFormat
	}
	if flags.Changed("protocol-log") {
		file.Log.Protocol = protocolLog
	}
	if flags.Changed("state-file") {
		file.StateFile = stateFile
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

func buildBackends(decls []config.Backend) ([]*backend.Handle, error) {
	handles := make([]*backend.Handle, 0, len(decls))
	for _, d := range decls {
		h, err := backend.New(d.Kind, d.Name, d.Params)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	file, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := &redirect{w: os.Stderr}
	logs, err := logging.New(file.Log, out)
	if err != nil {
		return err
	}
	defer logs.Sync()

	handles, err := buildBackends(file.Backends)
	if err != nil {
		return err
	}

	cfg := file.ServerConfig()
	cfg.Backends = handles
	cfg.Logger = logs.Root
	cfg.Loggers = logs.Loggers

	var sinks []log.Logger
	if file.Log.Protocol != "" {
		capture, err := log.NewFileLogger(file.Log.Protocol)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer func() {
			if err := capture.Close(); err != nil {
				logs.Root.Warn("protocol log close failed", "error", err)
			}
			written, failed := capture.Stats()
			logs.Root.Info("protocol log closed", "path", capture.Path(), "events", written, "failed", failed)
		}()
		sinks = append(sinks, capture)
	}
	if trace {
		sinks = append(sinks, log.NewSlogAdapter(logs.Root.With("component", "protocol")))
	}
	if len(sinks) > 0 {
		cfg.ProtocolLogger = log.NewMultiLogger(sinks...)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logs.Root.Info("media server started",
		"name", srv.Device().FriendlyName(),
		"udn", srv.Device().UDN(),
		"location", srv.Location())

	if interactOn {
		console, err := interactive.New(srv)
		if err != nil {
			logs.Root.Error("console unavailable", "error", err)
		} else {
			out.set(console.Stderr())
			consoleCtx, cancel := context.WithCancel(ctx)
			go console.Run(consoleCtx, stop)
			defer cancel()
		}
	}

	<-ctx.Done()
	out.set(os.Stderr)
	logs.Root.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// redirect is a log destination that can be switched while loggers hold it.
type redirect struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *redirect) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write(p)
}

func (r *redirect) set(w io.Writer) {
	r.mu.Lock()
	r.w = w
	r.mu.Unlock()
}
