package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/upnp-media/upnp-go/pkg/description"
	"github.com/upnp-media/upnp-go/pkg/gena"
	"github.com/upnp-media/upnp-go/pkg/soap"
)

// routes dispatches on the last path segment of registry URLs:
// desc.xml, control and event.
func (s *MediaServer) routes(desc *description.Handler) http.Handler {
	control := soap.NewHandler(s.dispatcher, s.server)
	events := gena.NewHandler(s.events, s.registry, s.server)

	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch p := r.URL.Path; {
		case strings.HasSuffix(p, "/desc.xml"):
			desc.ServeHTTP(w, r)
		case strings.HasSuffix(p, "/control"):
			control.ServeHTTP(w, r)
		case strings.HasSuffix(p, "/event"):
			events.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
	return s.accessLog(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *MediaServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.loggers.HTTP.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", time.Since(start))
	})
}
