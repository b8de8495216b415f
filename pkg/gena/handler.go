package gena

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/upnp-media/upnp-go/pkg/log"
	"github.com/upnp-media/upnp-go/pkg/registry"
)

// Header parsing errors.
var (
	ErrMalformedCallback = errors.New("malformed CALLBACK header")
	ErrMalformedTimeout  = errors.New("malformed TIMEOUT header")
)

// EventURLResolver maps an event subscription URL path to its service.
type EventURLResolver interface {
	ResolveEventURL(path string) (*registry.ServiceEntry, error)
}

// Handler serves SUBSCRIBE and UNSUBSCRIBE on event URLs.
type Handler struct {
	manager  *Manager
	resolver EventURLResolver
	server   string
}

// NewHandler creates the HTTP handler. server is the SERVER header value.
func NewHandler(m *Manager, resolver EventURLResolver, server string) *Handler {
	return &Handler{manager: m, resolver: resolver, server: server}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "SUBSCRIBE":
		h.subscribe(w, r)
	case "UNSUBSCRIBE":
		h.unsubscribe(w, r)
	default:
		w.Header().Set("Allow", "SUBSCRIBE, UNSUBSCRIBE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	entry, err := h.resolver.ResolveEventURL(r.URL.Path)
	if err != nil {
		h.reply(w, r, http.StatusNotFound, "")
		return
	}

	sid := r.Header.Get("SID")
	callback := r.Header.Get("CALLBACK")
	nt := r.Header.Get("NT")

	timeout, err := ParseTimeout(r.Header.Get("TIMEOUT"))
	if err != nil {
		h.reply(w, r, http.StatusBadRequest, sid)
		return
	}

	if sid != "" {
		// Renewal carries neither CALLBACK nor NT.
		if callback != "" || nt != "" {
			h.reply(w, r, http.StatusBadRequest, sid)
			return
		}
		sub, err := h.manager.Get(sid)
		if err != nil || sub.Service != entry.Service {
			h.reply(w, r, http.StatusPreconditionFailed, sid)
			return
		}
		granted, err := h.manager.Renew(sid, timeout)
		if err != nil {
			h.reply(w, r, http.StatusPreconditionFailed, sid)
			return
		}
		h.writeGranted(w, sid, granted)
		h.logRequest(r, "SUBSCRIBE", sid, http.StatusOK)
		return
	}

	if nt != "upnp:event" {
		h.reply(w, r, http.StatusPreconditionFailed, "")
		return
	}
	callbacks, err := ParseCallbacks(callback)
	if err != nil {
		h.reply(w, r, http.StatusPreconditionFailed, "")
		return
	}

	sub, err := h.manager.subscribe(entry.Service, callbacks, timeout)
	switch {
	case errors.Is(err, ErrInvalidCallback):
		h.reply(w, r, http.StatusPreconditionFailed, "")
		return
	case err != nil:
		h.reply(w, r, http.StatusServiceUnavailable, "")
		return
	}

	h.writeGranted(w, sub.SID, sub.Info().Timeout)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	h.logRequest(r, "SUBSCRIBE", sub.SID, http.StatusOK)

	// The initial event must follow the response.
	h.manager.activate(sub)
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	entry, err := h.resolver.ResolveEventURL(r.URL.Path)
	if err != nil {
		h.reply(w, r, http.StatusNotFound, "")
		return
	}

	sid := r.Header.Get("SID")
	if sid == "" {
		h.reply(w, r, http.StatusPreconditionFailed, "")
		return
	}
	if r.Header.Get("CALLBACK") != "" || r.Header.Get("NT") != "" {
		h.reply(w, r, http.StatusBadRequest, sid)
		return
	}

	sub, err := h.manager.Get(sid)
	if err != nil || sub.Service != entry.Service {
		h.reply(w, r, http.StatusPreconditionFailed, sid)
		return
	}
	if err := h.manager.Unsubscribe(sid); err != nil {
		h.reply(w, r, http.StatusPreconditionFailed, sid)
		return
	}
	h.reply(w, r, http.StatusOK, sid)
}

func (h *Handler) writeGranted(w http.ResponseWriter, sid string, granted time.Duration) {
	hdr := w.Header()
	hdr.Set("SID", sid)
	hdr.Set("TIMEOUT", FormatTimeout(granted))
	hdr.Set("DATE", time.Now().UTC().Format(http.TimeFormat))
	if h.server != "" {
		hdr.Set("SERVER", h.server)
	}
	hdr.Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request, status int, sid string) {
	if h.server != "" {
		w.Header().Set("SERVER", h.server)
	}
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(status)
	h.logRequest(r, r.Method, sid, status)
	if status >= 400 {
		h.manager.logger.Debug("event request rejected", "method", r.Method, "path", r.URL.Path, "sid", sid, "status", status)
	}
}

func (h *Handler) logRequest(r *http.Request, method, sid string, status int) {
	h.manager.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  log.DirectionIn,
		Protocol:   log.ProtocolGENA,
		Category:   log.CategoryMessage,
		RemoteAddr: r.RemoteAddr,
		Notify: &log.NotifyEvent{
			Type:       log.MessageTypeRequest,
			Method:     method,
			SID:        sid,
			StatusCode: status,
		},
	})
}

// ParseCallbacks parses a CALLBACK header of one or more <url> entries.
func ParseCallbacks(h string) ([]*url.URL, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedCallback)
	}

	var out []*url.URL
	for len(h) > 0 {
		if h[0] != '<' {
			return nil, fmt.Errorf("%w: %q", ErrMalformedCallback, h)
		}
		end := strings.IndexByte(h, '>')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated", ErrMalformedCallback)
		}
		u, err := url.Parse(strings.TrimSpace(h[1:end]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
		}
		out = append(out, u)
		h = strings.TrimSpace(h[end+1:])
	}
	return out, nil
}

// ParseTimeout parses a TIMEOUT header ("Second-1800" or "Second-infinite").
// An empty header and "infinite" both yield 0, meaning the default.
func ParseTimeout(h string) (time.Duration, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0, nil
	}
	rest, ok := cutPrefixFold(h, "Second-")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTimeout, h)
	}
	if strings.EqualFold(rest, "infinite") {
		return 0, nil
	}
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTimeout, h)
	}
	return time.Duration(n) * time.Second, nil
}

// FormatTimeout renders a granted timeout as a TIMEOUT header value.
func FormatTimeout(d time.Duration) string {
	return "Second-" + strconv.FormatInt(int64(d/time.Second), 10)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
