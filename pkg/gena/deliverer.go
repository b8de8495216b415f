package gena

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// ErrDeliveryStatus is returned when a subscriber answers NOTIFY with a
// non-2xx status.
var ErrDeliveryStatus = errors.New("subscriber rejected event")

// Deliverer sends one event to a subscriber. Callbacks are tried in order
// until one accepts the event. It returns the HTTP status of the last
// attempt (0 if none got a response).
type Deliverer interface {
	Deliver(ctx context.Context, callbacks []*url.URL, ev *Event) (int, error)
}

// HTTPDeliverer delivers events as GENA NOTIFY requests.
type HTTPDeliverer struct {
	client *http.Client
}

// NewHTTPDeliverer creates a deliverer using client, or a default client if
// nil. Per-attempt timeouts come from the context.
func NewHTTPDeliverer(client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{
			// Callbacks are plain URLs chosen by the subscriber; never follow
			// redirects elsewhere.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &HTTPDeliverer{client: client}
}

// Deliver implements Deliverer.
func (d *HTTPDeliverer) Deliver(ctx context.Context, callbacks []*url.URL, ev *Event) (int, error) {
	body, err := EncodePropertySet(ev.Variables)
	if err != nil {
		return 0, err
	}

	var (
		status  int
		lastErr error
	)
	for _, cb := range callbacks {
		status, lastErr = d.send(ctx, cb, ev, body)
		if lastErr == nil {
			return status, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return status, lastErr
}

func (d *HTTPDeliverer) send(ctx context.Context, cb *url.URL, ev *Event, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "NOTIFY", cb.String(), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("NTS", "upnp:propchange")
	req.Header.Set("SID", ev.SID)
	req.Header.Set("SEQ", strconv.FormatUint(uint64(ev.Seq), 10))
	req.Close = true

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("notify %s: %w", cb.Host, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%w: %s answered %d", ErrDeliveryStatus, cb.Host, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Compile-time interface satisfaction check.
var _ Deliverer = (*HTTPDeliverer)(nil)
