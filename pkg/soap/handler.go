package soap

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

// MaxRequestBody caps the size of a control request envelope.
const MaxRequestBody = 1 << 20

// ContentType is the Content-Type of control responses.
const ContentType = `text/xml; charset="utf-8"`

// Handler serves POST and M-POST control requests for a Dispatcher.
type Handler struct {
	dispatcher *Dispatcher
	server     string
}

// NewHandler creates the HTTP handler. server is the SERVER header value.
func NewHandler(d *Dispatcher, server string) *Handler {
	return &Handler{dispatcher: d, server: server}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var soapAction string
	switch r.Method {
	case http.MethodPost:
		soapAction = r.Header.Get("SOAPACTION")
	case "M-POST":
		var ok bool
		if soapAction, ok = extensionAction(r.Header); !ok {
			http.Error(w, "missing MAN header", http.StatusBadRequest)
			return
		}
	default:
		w.Header().Set("Allow", "POST, M-POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := http.MaxBytesReader(w, r.Body, MaxRequestBody)
	resp := h.dispatcher.Dispatch(r.Context(), r.URL.Path, soapAction, body)

	var tooLarge *http.MaxBytesError
	if resp.Fault != nil && errors.As(readRest(body), &tooLarge) {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", ContentType)
	hdr.Set("EXT", "")
	if h.server != "" {
		hdr.Set("SERVER", h.server)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// readRest drains what is left of the body and reports the read error, so an
// envelope rejected for being cut off at the limit can be told apart from a
// malformed one.
func readRest(body io.Reader) error {
	buf := make([]byte, 512)
	for {
		_, err := body.Read(buf)
		if err != nil {
			return err
		}
	}
}

// extensionAction finds the SOAPACTION header of an M-POST request, which is
// prefixed by the namespace number declared in the MAN header:
//
//	MAN: "http://schemas.xmlsoap.org/soap/envelope/"; ns=01
//	01-SOAPACTION: "urn:...#Browse"
func extensionAction(h http.Header) (string, bool) {
	man := h.Get("MAN")
	if man == "" {
		return "", false
	}
	parts := strings.Split(man, ";")
	if strings.Trim(strings.TrimSpace(parts[0]), `"`) != EnvelopeNamespace {
		return "", false
	}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.TrimSpace(k) == "ns" {
			return h.Get(strings.TrimSpace(v) + "-SOAPACTION"), true
		}
	}
	return "", false
}
