package upnp_test

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upnp-media/upnp-go/internal/testutil"
	"github.com/upnp-media/upnp-go/pkg/backend"
	_ "github.com/upnp-media/upnp-go/pkg/backend/memory"
	"github.com/upnp-media/upnp-go/pkg/didl"
	"github.com/upnp-media/upnp-go/pkg/gena"
	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/server"
	"github.com/upnp-media/upnp-go/pkg/soap"
	"github.com/upnp-media/upnp-go/pkg/ssdp"
)

const fixture = `
- id: music
  title: Music
  restricted: false
  children:
    - id: t1
      title: So What
      class: object.item.audioItem.musicTrack
      resources:
        - {url: "http://media/t1.mp3", protocol_info: "http-get:*:audio/mpeg:*"}
    - id: t2
      title: Freddie Freeloader
      class: object.item.audioItem.musicTrack
`

// controlPoint plays the role of a renderer or browser on the network.
type controlPoint struct {
	t        *testing.T
	base     *url.URL
	services map[string]serviceDesc
}

type serviceDesc struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

type deviceDesc struct {
	Device struct {
		DeviceType   string        `xml:"deviceType"`
		FriendlyName string        `xml:"friendlyName"`
		UDN          string        `xml:"UDN"`
		Services     []serviceDesc `xml:"serviceList>service"`
	} `xml:"device"`
}

func fetchDescription(t *testing.T, location string) (*controlPoint, deviceDesc) {
	t.Helper()
	resp, err := http.Get(location)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var desc deviceDesc
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&desc))

	base, err := url.Parse(location)
	require.NoError(t, err)
	cp := &controlPoint{t: t, base: base, services: make(map[string]serviceDesc)}
	for _, s := range desc.Device.Services {
		cp.services[s.ServiceType] = s
	}
	return cp, desc
}

func (cp *controlPoint) resolve(ref string) string {
	u, err := cp.base.Parse(ref)
	require.NoError(cp.t, err)
	return u.String()
}

func (cp *controlPoint) invoke(serviceType, action string, args ...soap.Arg) ([]soap.Arg, error) {
	cp.t.Helper()
	svc, ok := cp.services[serviceType]
	require.True(cp.t, ok, "service %s not described", serviceType)

	body, err := soap.EncodeRequest(serviceType, action, args)
	require.NoError(cp.t, err)
	req, err := http.NewRequest(http.MethodPost, cp.resolve(svc.ControlURL), bytes.NewReader(body))
	require.NoError(cp.t, err)
	req.Header.Set("Content-Type", soap.ContentType)
	req.Header.Set("SOAPACTION", `"`+serviceType+"#"+action+`"`)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(cp.t, err)
	defer resp.Body.Close()
	return soap.DecodeResponse(resp.Body)
}

func (cp *controlPoint) subscribe(serviceType, callback string) string {
	cp.t.Helper()
	req, err := http.NewRequest("SUBSCRIBE", cp.resolve(cp.services[serviceType].EventSubURL), nil)
	require.NoError(cp.t, err)
	req.Header.Set("CALLBACK", "<"+callback+">")
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", "Second-300")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(cp.t, err)
	resp.Body.Close()
	require.Equal(cp.t, http.StatusOK, resp.StatusCode)
	return resp.Header.Get("SID")
}

func value(args []soap.Arg, name string) string {
	for _, a := range args {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

type eventSink struct {
	mu     sync.Mutex
	events []map[string]string
}

func (s *eventSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vars, err := gena.DecodePropertySet(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	m := make(map[string]string, len(vars))
	for _, v := range vars {
		m[v.Name] = v.Value
	}
	s.mu.Lock()
	s.events = append(s.events, m)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *eventSink) last() (map[string]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil, 0
	}
	return s.events[len(s.events)-1], len(s.events)
}

func startMediaServer(t *testing.T, conn *testutil.MemConn) *server.MediaServer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))
	h, err := backend.New("memory", "library", map[string]string{
		"fixture":  path,
		"writable": "true",
	})
	require.NoError(t, err)

	srv, err := server.New(server.Config{
		FriendlyName:       "Integration",
		Host:               "127.0.0.1",
		Backends:           []*backend.Handle{h},
		SSDPConns:          []ssdp.Conn{conn},
		SSDP:               ssdp.Config{InitialRepeat: 1, MaxResponseDelay: 50 * time.Millisecond},
		ModerationInterval: -1,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		if srv.State() == server.StateRunning {
			_ = srv.Stop(context.Background())
		}
	})
	return srv
}

func TestMediaServerEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	conn := testutil.NewMemConn()
	srv := startMediaServer(t, conn)
	conn.Sent(200 * time.Millisecond)

	// Discovery: a search for MediaServer devices is answered by unicast.
	search := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 1\r\n" +
		"ST: " + model.DeviceTypeMediaServer1 + "\r\n\r\n"
	conn.Deliver([]byte(search), "192.0.2.10:50000")

	var location string
	for _, d := range conn.Sent(300 * time.Millisecond) {
		msg, err := ssdp.ParseMessage(d.Data)
		require.NoError(t, err)
		if !msg.IsResponse() {
			continue
		}
		assert.Equal(t, "192.0.2.10:50000", d.Addr.String())
		assert.Equal(t, model.DeviceTypeMediaServer1, msg.Get("ST"))
		location = msg.Get("LOCATION")
	}
	require.Equal(t, srv.Location(), location)

	// Description.
	cp, desc := fetchDescription(t, location)
	assert.Equal(t, model.DeviceTypeMediaServer1, desc.Device.DeviceType)
	assert.Equal(t, "Integration", desc.Device.FriendlyName)
	assert.Equal(t, srv.Device().UDN(), desc.Device.UDN)
	require.Contains(t, cp.services, model.ServiceTypeContentDir1)
	require.Contains(t, cp.services, model.ServiceTypeConnectionMgr1)

	// Control: browse the library.
	out, err := cp.invoke(model.ServiceTypeContentDir1, "Browse",
		soap.Arg{Name: "ObjectID", Value: "music"},
		soap.Arg{Name: "BrowseFlag", Value: "BrowseDirectChildren"},
		soap.Arg{Name: "Filter", Value: "*"},
		soap.Arg{Name: "StartingIndex", Value: "0"},
		soap.Arg{Name: "RequestedCount", Value: "0"},
		soap.Arg{Name: "SortCriteria", Value: "+dc:title"},
	)
	require.NoError(t, err)
	assert.Equal(t, "2", value(out, "TotalMatches"))
	items, err := didl.DecodeString(value(out, "Result"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Freddie Freeloader", items[0].Title)
	assert.Equal(t, "So What", items[1].Title)

	out, err = cp.invoke(model.ServiceTypeConnectionMgr1, "GetProtocolInfo")
	require.NoError(t, err)
	assert.Contains(t, value(out, "Source"), "http-get:*:audio/mpeg:*")

	// Unknown objects fault with the ContentDirectory error code.
	_, err = cp.invoke(model.ServiceTypeContentDir1, "Browse",
		soap.Arg{Name: "ObjectID", Value: "missing"},
		soap.Arg{Name: "BrowseFlag", Value: "BrowseMetadata"},
		soap.Arg{Name: "Filter", Value: "*"},
		soap.Arg{Name: "StartingIndex", Value: "0"},
		soap.Arg{Name: "RequestedCount", Value: "0"},
		soap.Arg{Name: "SortCriteria", Value: ""},
	)
	var fault *soap.Error
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, soap.CodeNoSuchObject, fault.Code)

	// Eventing: subscribe, then change the library through CreateObject.
	sink := &eventSink{}
	callback := httptest.NewServer(sink)
	defer callback.Close()
	sid := cp.subscribe(model.ServiceTypeContentDir1, callback.URL+"/cds")
	require.True(t, strings.HasPrefix(sid, "uuid:"), sid)

	require.Eventually(t, func() bool {
		_, n := sink.last()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
	initial, _ := sink.last()
	before, err := strconv.ParseUint(initial["SystemUpdateID"], 10, 32)
	require.NoError(t, err)

	elements, err := didl.Encode([]*backend.Item{{
		ParentID: "music",
		Title:    "Blue in Green",
		Class:    "object.item.audioItem.musicTrack",
	}}, didl.FilterAll)
	require.NoError(t, err)
	out, err = cp.invoke(model.ServiceTypeContentDir1, "CreateObject",
		soap.Arg{Name: "ContainerID", Value: "music"},
		soap.Arg{Name: "Elements", Value: elements},
	)
	require.NoError(t, err)
	assert.NotEmpty(t, value(out, "ObjectID"))

	require.Eventually(t, func() bool {
		_, n := sink.last()
		return n >= 2
	}, 2*time.Second, 10*time.Millisecond)
	latest, _ := sink.last()
	assert.Equal(t, strconv.FormatUint(before+1, 10), latest["SystemUpdateID"])

	// Shutdown withdraws every advertisement.
	require.NoError(t, srv.Stop(context.Background()))
	var byebye int
	for _, d := range conn.Sent(200 * time.Millisecond) {
		msg, err := ssdp.ParseMessage(d.Data)
		require.NoError(t, err)
		if msg.Get("NTS") == ssdp.NTSByebye {
			byebye++
		}
	}
	assert.Equal(t, 5, byebye)

	resp, err := http.Get(location)
	if err == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	assert.Error(t, err, "HTTP listener still serving after Stop")
}
