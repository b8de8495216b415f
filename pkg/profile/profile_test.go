package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upnp-media/upnp-go/pkg/backend"
	"github.com/upnp-media/upnp-go/pkg/backend/memory"
	"github.com/upnp-media/upnp-go/pkg/connectionmanager"
	"github.com/upnp-media/upnp-go/pkg/contentdirectory"
	"github.com/upnp-media/upnp-go/pkg/model"
)

func noop(context.Context, map[string]any) (map[string]any, error) { return nil, nil }

func TestAvailable(t *testing.T) {
	types, err := Available()
	require.NoError(t, err)
	assert.Equal(t, []string{model.ServiceTypeConnectionMgr1, model.ServiceTypeContentDir1}, types)
}

func TestLoad(t *testing.T) {
	p, err := Load(model.ServiceTypeContentDir1)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Description)
	assert.Equal(t, []string{"GetSearchCapabilities", "GetSortCapabilities", "GetSystemUpdateID", "Browse"}, p.MandatoryActions())

	_, err = Load("urn:schemas-upnp-org:service:AVTransport:1")
	assert.ErrorIs(t, err, ErrUnknownServiceType)
}

func TestContentDirectoryConforms(t *testing.T) {
	for _, writable := range []bool{false, true} {
		params := map[string]string{}
		if writable {
			params[memory.ParamWritable] = "true"
		}
		b, err := memory.Factory("library", params)
		require.NoError(t, err)

		cds, err := contentdirectory.New(contentdirectory.Config{
			Backends:           []*backend.Handle{{Name: "library", Kind: memory.Kind, Backend: b}},
			ModerationInterval: -1,
		})
		require.NoError(t, err)
		t.Cleanup(cds.Close)

		p, err := Load(model.ServiceTypeContentDir1)
		require.NoError(t, err)
		res := Validate(p, cds.Service())
		assert.True(t, res.Valid, "writable=%t: %v", writable, res.Errors)
		assert.Empty(t, res.Warnings)
	}
}

func TestConnectionManagerConforms(t *testing.T) {
	cm, err := connectionmanager.New(connectionmanager.Config{})
	require.NoError(t, err)

	p, err := Load(model.ServiceTypeConnectionMgr1)
	require.NoError(t, err)
	res := Validate(p, cm.Service())
	assert.True(t, res.Valid, res.Errors)
}

func TestValidateReportsProblems(t *testing.T) {
	svc := model.NewService(model.ServiceTypeConnectionMgr1, model.ServiceIDConnectionManager)
	require.NoError(t, svc.AddStateVariable(model.NewStateVariable(&model.StateVariableMetadata{
		Name: "SourceProtocolInfo", Type: model.DataTypeString,
	})))
	require.NoError(t, svc.AddStateVariable(model.NewStateVariable(&model.StateVariableMetadata{
		Name: "X_Vendor", Type: model.DataTypeString,
	})))
	require.NoError(t, svc.AddAction(model.NewAction(&model.ActionMetadata{
		Name: "GetProtocolInfo",
		Out:  []model.Argument{{Name: "Source", RelatedStateVariable: "SourceProtocolInfo"}},
	}, noop)))

	p, err := Load(model.ServiceTypeConnectionMgr1)
	require.NoError(t, err)
	res := Validate(p, svc)

	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "mandatory action GetCurrentConnectionIDs missing")
	assert.Contains(t, res.Errors, "action GetProtocolInfo outputs [Source], want [Source Sink]")
	assert.Contains(t, res.Errors, "state variable SourceProtocolInfo evented=false, want true")
	assert.Contains(t, res.Errors, "mandatory state variable SinkProtocolInfo missing")
	assert.Contains(t, res.Warnings, "vendor state variable X_Vendor")

	dev := model.NewDevice(model.NewUDN(), model.DeviceTypeMediaServer1, "Broken")
	require.NoError(t, dev.AddService(svc))
	err = CheckDevice(dev)
	require.ErrorIs(t, err, ErrNonConformant)
	assert.Contains(t, err.Error(), model.ServiceIDConnectionManager+": mandatory action")
}

func TestCheckDeviceSkipsUnknownTypes(t *testing.T) {
	dev := model.NewDevice(model.NewUDN(), model.DeviceTypeMediaServer1, "Vendor")
	require.NoError(t, dev.AddService(model.NewService("urn:example-com:service:Thing:1", "urn:example-com:serviceId:Thing")))
	assert.NoError(t, CheckDevice(dev))
}
