package connectionmanager

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/soap"
)

const mp3Tagged = "http-get:*:audio/mpeg:DLNA.ORG_PN=MP3"

func newService(t *testing.T, source ...string) *Service {
	t.Helper()
	s, err := New(Config{SourceProtocolInfo: source})
	require.NoError(t, err)
	return s
}

func invoke(t *testing.T, s *Service, action string, args map[string]string) (map[string]string, *soap.Error) {
	t.Helper()
	var in []soap.Arg
	for k, v := range args {
		in = append(in, soap.Arg{Name: k, Value: v})
	}
	d := soap.NewDispatcher(nil, soap.Config{})
	out, fault := d.Invoke(context.Background(), s.Service(), action, in)
	if fault != nil {
		return nil, fault
	}
	res := make(map[string]string, len(out))
	for _, a := range out {
		res[a.Name] = a.Value
	}
	return res, nil
}

func prepareArgs(protocolInfo, direction string) map[string]string {
	return map[string]string{
		"RemoteProtocolInfo":    protocolInfo,
		"PeerConnectionManager": "uuid:renderer/urn:upnp-org:serviceId:ConnectionManager",
		"PeerConnectionID":      "-1",
		"Direction":             direction,
	}
}

type recorder struct {
	mu     sync.Mutex
	events [][]model.Change
}

func (r *recorder) OnStateChanged(_ *model.Service, changes []model.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, changes)
}

func TestGetProtocolInfo(t *testing.T) {
	s := newService(t, "http-get:*:image/jpeg:*", "http-get:*:audio/mpeg:*", mp3Tagged)

	out, fault := invoke(t, s, "GetProtocolInfo", nil)
	require.Nil(t, fault)
	assert.Empty(t, out["Sink"])

	entries := strings.Split(out["Source"], ",")
	assert.Contains(t, entries, "http-get:*:image/jpeg:*")
	assert.Contains(t, entries, "http-get:*:image/jpeg:DLNA.ORG_OP=01;DLNA.ORG_FLAGS=01700000000000000000000000000000")
	assert.Contains(t, entries, mp3Tagged)
	// audio/mpeg already has a tagged entry.
	assert.Len(t, entries, 4)
}

func TestInvalidSourceProtocolInfo(t *testing.T) {
	_, err := New(Config{SourceProtocolInfo: []string{"http-get:*"}})
	assert.Error(t, err)
}

func TestConnectionZero(t *testing.T) {
	s := newService(t, "http-get:*:audio/mpeg:*")

	out, fault := invoke(t, s, "GetCurrentConnectionIDs", nil)
	require.Nil(t, fault)
	assert.Equal(t, "0", out["ConnectionIDs"])

	out, fault = invoke(t, s, "GetCurrentConnectionInfo", map[string]string{"ConnectionID": "0"})
	require.Nil(t, fault)
	assert.Equal(t, map[string]string{
		"RcsID":                 "-1",
		"AVTransportID":         "-1",
		"ProtocolInfo":          "",
		"PeerConnectionManager": "",
		"PeerConnectionID":      "-1",
		"Direction":             DirectionOutput,
		"Status":                StatusUnknown,
	}, out)

	_, fault = invoke(t, s, "ConnectionComplete", map[string]string{"ConnectionID": "0"})
	require.NotNil(t, fault)
	assert.Equal(t, soap.CodeParameterMismatch, fault.Code)
}

func TestPrepareAndComplete(t *testing.T) {
	s := newService(t, "http-get:*:audio/mpeg:*")
	rec := &recorder{}
	s.Service().Subscribe(rec)

	out, fault := invoke(t, s, "PrepareForConnection", prepareArgs("http-get:*:audio/mpeg:*", DirectionOutput))
	require.Nil(t, fault)
	assert.Equal(t, "1", out["ConnectionID"])
	assert.Equal(t, "-1", out["AVTransportID"])
	assert.Equal(t, "-1", out["RcsID"])

	out, fault = invoke(t, s, "GetCurrentConnectionIDs", nil)
	require.Nil(t, fault)
	assert.Equal(t, "0,1", out["ConnectionIDs"])

	out, fault = invoke(t, s, "GetCurrentConnectionInfo", map[string]string{"ConnectionID": "1"})
	require.Nil(t, fault)
	assert.Equal(t, StatusOK, out["Status"])
	assert.Equal(t, "http-get:*:audio/mpeg:*", out["ProtocolInfo"])

	_, fault = invoke(t, s, "ConnectionComplete", map[string]string{"ConnectionID": "1"})
	require.Nil(t, fault)

	_, fault = invoke(t, s, "GetCurrentConnectionInfo", map[string]string{"ConnectionID": "1"})
	require.NotNil(t, fault)
	assert.Equal(t, soap.CodeParameterMismatch, fault.Code)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 2)
	assert.Equal(t, []model.Change{{Name: varCurrentConnectionIDs, Value: "0,1"}}, rec.events[0])
	assert.Equal(t, []model.Change{{Name: varCurrentConnectionIDs, Value: "0"}}, rec.events[1])
}

func TestPrepareFaults(t *testing.T) {
	s := newService(t, "http-get:*:audio/mpeg:*")

	tests := []struct {
		name string
		args map[string]string
		code soap.Code
	}{
		{"input direction", prepareArgs("http-get:*:audio/mpeg:*", DirectionInput), soap.CodeInvalidCurrentTag},
		{"unknown direction", prepareArgs("http-get:*:audio/mpeg:*", "Sideways"), soap.CodeInvalidArgs},
		{"incompatible format", prepareArgs("http-get:*:video/mp4:*", DirectionOutput), soap.CodeNoSuchObject},
		{"incompatible protocol", prepareArgs("rtsp-rtp-udp:*:audio/mpeg:*", DirectionOutput), soap.CodeNoSuchObject},
		{"malformed protocol info", prepareArgs("audio/mpeg", DirectionOutput), soap.CodeNoSuchObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, fault := invoke(t, s, "PrepareForConnection", tt.args)
			require.NotNil(t, fault)
			assert.Equal(t, tt.code, fault.Code)
		})
	}

	assert.Len(t, s.Connections(), 1)
}

func TestPrepareWildcardRemote(t *testing.T) {
	s := newService(t, "http-get:*:audio/mpeg:*")

	c, err := s.Prepare("http-get:*:*:*", "", -1, DirectionOutput)
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.ID)

	c, err = s.Prepare("http-get:*:AUDIO/MPEG:*", "", -1, DirectionOutput)
	require.NoError(t, err)
	assert.Equal(t, int32(2), c.ID)

	ids := make([]int32, 0, 3)
	for _, c := range s.Connections() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int32{0, 1, 2}, ids)
}

func TestSetSourceProtocolInfo(t *testing.T) {
	s := newService(t)
	rec := &recorder{}
	s.Service().Subscribe(rec)

	_, err := s.Prepare("http-get:*:audio/mpeg:*", "", -1, DirectionOutput)
	require.Error(t, err)

	require.NoError(t, s.SetSourceProtocolInfo([]string{mp3Tagged}))
	require.NoError(t, s.SetSourceProtocolInfo([]string{mp3Tagged}))
	assert.Error(t, s.SetSourceProtocolInfo([]string{"bogus"}))

	_, err = s.Prepare("http-get:*:audio/mpeg:*", "", -1, DirectionOutput)
	require.NoError(t, err)
	assert.Len(t, s.SourceProtocolInfo(), 1)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 2)
	assert.Equal(t, []model.Change{{Name: varSourceProtocolInfo, Value: mp3Tagged}}, rec.events[0])
}
