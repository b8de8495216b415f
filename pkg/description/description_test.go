package description

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/registry"
)

func noop(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func testService(t *testing.T) *model.Service {
	t.Helper()
	svc := model.NewService("urn:schemas-upnp-org:service:Dimming:1", "urn:upnp-org:serviceId:Dimming")
	for _, meta := range []*model.StateVariableMetadata{
		{Name: "LoadLevelStatus", Type: model.DataTypeUI1, Evented: true, Range: &model.AllowedRange{Minimum: 0, Maximum: 100, Step: 1}},
		{Name: "RampMode", Type: model.DataTypeString, AllowedValues: []string{"Fast", "Slow"}, Default: "Fast"},
	} {
		require.NoError(t, svc.AddStateVariable(model.NewStateVariable(meta)))
	}
	require.NoError(t, svc.AddAction(model.NewAction(&model.ActionMetadata{
		Name: "SetLoadLevel",
		In:   []model.Argument{{Name: "NewLevel", RelatedStateVariable: "LoadLevelStatus"}},
		Out:  []model.Argument{{Name: "Mode", RelatedStateVariable: "RampMode"}},
	}, noop)))
	require.NoError(t, svc.AddAction(model.NewAction(&model.ActionMetadata{Name: "Reset"}, noop)))
	return svc
}

func registeredTree(t *testing.T) (*registry.Registry, *model.Device) {
	t.Helper()
	root := model.NewDevice("uuid:root-1", model.DeviceTypeMediaServer1, "Living Room")
	root.SetInfo(model.DeviceInfo{Manufacturer: "upnp-go", ModelName: "Media Server", ModelNumber: "1"})
	require.NoError(t, root.AddService(testService(t)))

	child := model.NewDevice("uuid:child-1", "urn:schemas-upnp-org:device:DimmableLight:1", "Lamp")
	require.NoError(t, root.AddEmbedded(child))

	reg := registry.New(registry.DefaultConfig())
	_, err := reg.Register(root)
	require.NoError(t, err)
	return reg, root
}

func TestNewRoot(t *testing.T) {
	reg, root := registeredTree(t)

	doc, err := NewRoot(root, reg, Options{DLNADoc: "DMS-1.50"})
	require.NoError(t, err)

	want := Device{
		DeviceType:   model.DeviceTypeMediaServer1,
		FriendlyName: "Living Room",
		Manufacturer: "upnp-go",
		ModelName:    "Media Server",
		ModelNumber:  "1",
		UDN:          "uuid:root-1",
		DLNADoc:      "DMS-1.50",
		Services: []Service{{
			ServiceType: "urn:schemas-upnp-org:service:Dimming:1",
			ServiceID:   "urn:upnp-org:serviceId:Dimming",
			SCPDURL:     "/dev/root-1/svc/Dimming/desc.xml",
			ControlURL:  "/dev/root-1/svc/Dimming/control",
			EventSubURL: "/dev/root-1/svc/Dimming/event",
		}},
		Devices: []Device{{
			DeviceType:   "urn:schemas-upnp-org:device:DimmableLight:1",
			FriendlyName: "Lamp",
			UDN:          "uuid:child-1",
		}},
	}
	assert.Empty(t, cmp.Diff(want, doc.Device))
	assert.Equal(t, SpecVersion{Major: 1}, doc.SpecVersion)
}

func TestNewRootUnregistered(t *testing.T) {
	reg := registry.New(registry.DefaultConfig())
	dev := model.NewDevice("uuid:loose", model.DeviceTypeMediaServer1, "Loose")
	require.NoError(t, dev.AddService(testService(t)))

	_, err := NewRoot(dev, reg, Options{})
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestNewSCPD(t *testing.T) {
	doc := NewSCPD(testService(t))

	want := &SCPD{
		SpecVersion: SpecVersion{Major: 1},
		ActionList: &ActionList{Actions: []Action{
			{Name: "SetLoadLevel", ArgumentList: &ArgumentList{Arguments: []Argument{
				{Name: "NewLevel", Direction: "in", RelatedStateVariable: "LoadLevelStatus"},
				{Name: "Mode", Direction: "out", RelatedStateVariable: "RampMode"},
			}}},
			{Name: "Reset"},
		}},
		Variables: []StateVariable{
			{SendEvents: "yes", Name: "LoadLevelStatus", DataType: "ui1", AllowedRange: &AllowedRange{Minimum: "0", Maximum: "100", Step: "1"}},
			{SendEvents: "no", Name: "RampMode", DataType: "string", AllowedValueList: &AllowedValueList{Values: []string{"Fast", "Slow"}}},
		},
	}
	assert.Empty(t, cmp.Diff(want, doc))
}

func TestMarshalSCPD(t *testing.T) {
	body, err := Marshal(NewSCPD(testService(t)))
	require.NoError(t, err)
	s := string(body)

	assert.True(t, strings.HasPrefix(s, xml.Header))
	assert.Contains(t, s, `<scpd xmlns="urn:schemas-upnp-org:service-1-0">`)
	assert.Contains(t, s, `<stateVariable sendEvents="yes">`)
	assert.Contains(t, s, `<allowedValue>Slow</allowedValue>`)
	// Reset has no arguments and gets no argumentList.
	assert.Equal(t, 1, strings.Count(s, "<argumentList>"))
	reset := s[strings.Index(s, "<name>Reset</name>"):]
	assert.NotContains(t, reset[:strings.Index(reset, "</action>")], "argumentList")
	assert.NotContains(t, s, "<argumentList></argumentList>")
	// Only RampMode enumerates values; the ranged variable has none.
	assert.Equal(t, 1, strings.Count(s, "<allowedValueList>"))
	assert.NotContains(t, s, "<allowedValueList></allowedValueList>")
	ranged := s[strings.Index(s, "<name>LoadLevelStatus</name>"):]
	ranged = ranged[:strings.Index(ranged, "</stateVariable>")]
	assert.Contains(t, ranged, "<allowedValueRange>")
	assert.NotContains(t, ranged, "allowedValueList")
}

func TestSCPDWithoutActions(t *testing.T) {
	svc := model.NewService("urn:schemas-upnp-org:service:Quiet:1", "urn:upnp-org:serviceId:Quiet")
	require.NoError(t, svc.AddStateVariable(model.NewStateVariable(&model.StateVariableMetadata{
		Name: "Level", Type: model.DataTypeUI4,
	})))

	doc := NewSCPD(svc)
	assert.Nil(t, doc.ActionList)
	body, err := Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "actionList")
	assert.NotContains(t, string(body), "allowedValue")
}

func get(t *testing.T, h http.Handler, method, path string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHandler(t *testing.T) {
	reg, _ := registeredTree(t)
	h := NewHandler(reg, Config{Server: "Linux/6.0 UPnP/1.0 upnp-go/0.1", Options: Options{DLNADoc: "DMS-1.50"}})

	resp, body := get(t, h, http.MethodGet, "/dev/root-1/desc.xml")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ContentType, resp.Header.Get("Content-Type"))
	assert.Equal(t, "Linux/6.0 UPnP/1.0 upnp-go/0.1", resp.Header.Get("SERVER"))

	var root Root
	require.NoError(t, xml.Unmarshal([]byte(body), &root))
	assert.Equal(t, "uuid:root-1", root.Device.UDN)
	assert.Equal(t, "DMS-1.50", root.Device.DLNADoc)
	require.Len(t, root.Device.Devices, 1)
	assert.Equal(t, "uuid:child-1", root.Device.Devices[0].UDN)

	resp, body = get(t, h, http.MethodGet, "/dev/root-1/svc/Dimming/desc.xml")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scpd SCPD
	require.NoError(t, xml.Unmarshal([]byte(body), &scpd))
	require.NotNil(t, scpd.ActionList)
	require.Len(t, scpd.ActionList.Actions, 2)
	assert.Equal(t, "SetLoadLevel", scpd.ActionList.Actions[0].Name)
	require.NotNil(t, scpd.ActionList.Actions[0].ArgumentList)
	assert.Len(t, scpd.ActionList.Actions[0].ArgumentList.Arguments, 2)

	resp, body = get(t, h, http.MethodHead, "/dev/root-1/desc.xml")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestHandlerErrors(t *testing.T) {
	reg, _ := registeredTree(t)
	h := NewHandler(reg, Config{})

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"unknown device", http.MethodGet, "/dev/nobody/desc.xml", http.StatusNotFound},
		{"embedded device", http.MethodGet, "/dev/child-1/desc.xml", http.StatusNotFound},
		{"unknown service", http.MethodGet, "/dev/root-1/svc/Nope/desc.xml", http.StatusNotFound},
		{"foreign path", http.MethodGet, "/favicon.ico", http.StatusNotFound},
		{"post", http.MethodPost, "/dev/root-1/desc.xml", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := get(t, h, tt.method, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
