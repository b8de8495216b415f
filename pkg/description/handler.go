package description

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/registry"
)

// ContentType is the Content-Type of description documents.
const ContentType = `text/xml; charset="utf-8"`

// Resolver looks up the devices and services a description URL names.
type Resolver interface {
	ServiceLocator
	Device(udn string) (*model.Device, error)
	Parent(udn string) (string, bool)
	ParseDescriptionURL(path string) (string, bool)
	ResolveSCPDURL(path string) (*registry.ServiceEntry, error)
}

// Config configures a Handler.
type Config struct {
	// Server is the SERVER header value.
	Server string

	// Options apply to every device description.
	Options Options

	// Logger is used for operational logging. Nil disables logging.
	Logger *slog.Logger
}

// Handler serves device and service descriptions.
type Handler struct {
	resolver Resolver
	config   Config
	logger   *slog.Logger
}

// Compile-time interface satisfaction check.
var _ Resolver = (*registry.Registry)(nil)

// NewHandler creates the HTTP handler.
func NewHandler(resolver Resolver, config Config) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{resolver: resolver, config: config, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc, err := h.document(r.URL.Path)
	if err != nil {
		h.logger.Debug("description not found", "path", r.URL.Path, "error", err)
		http.NotFound(w, r)
		return
	}
	body, err := Marshal(doc)
	if err != nil {
		h.logger.Error("rendering description", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", ContentType)
	hdr.Set("Content-Length", strconv.Itoa(len(body)))
	if h.config.Server != "" {
		hdr.Set("SERVER", h.config.Server)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(body)
	}
}

func (h *Handler) document(path string) (any, error) {
	if strings.Contains(path, "/svc/") {
		entry, err := h.resolver.ResolveSCPDURL(path)
		if err != nil {
			return nil, err
		}
		return NewSCPD(entry.Service), nil
	}
	udn, ok := h.resolver.ParseDescriptionURL(path)
	if !ok {
		return nil, registry.ErrNotFound
	}
	// Embedded devices are described inside their root's document.
	if _, embedded := h.resolver.Parent(udn); embedded {
		return nil, registry.ErrNotFound
	}
	root, err := h.resolver.Device(udn)
	if err != nil {
		return nil, err
	}
	return NewRoot(root, h.resolver, h.config.Options)
}
