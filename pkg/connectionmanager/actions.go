package connectionmanager

import (
	"context"

	"github.com/upnp-media/upnp-go/pkg/model"
)

func (s *Service) build(source, ids string) (*model.Service, error) {
	svc := model.NewService(model.ServiceTypeConnectionMgr1, model.ServiceIDConnectionManager)

	vars := []*model.StateVariableMetadata{
		{Name: varSourceProtocolInfo, Type: model.DataTypeString, Evented: true, Default: source},
		{Name: varSinkProtocolInfo, Type: model.DataTypeString, Evented: true},
		{Name: varCurrentConnectionIDs, Type: model.DataTypeString, Evented: true, Default: ids},
		{Name: argTypeConnectionStatus, Type: model.DataTypeString, AllowedValues: []string{
			StatusOK, StatusContentFormatMismatch, StatusInsufficientBandwidth, StatusUnreliableChannel, StatusUnknown,
		}},
		{Name: argTypeConnectionManager, Type: model.DataTypeString},
		{Name: argTypeDirection, Type: model.DataTypeString, AllowedValues: []string{DirectionInput, DirectionOutput}},
		{Name: argTypeProtocolInfo, Type: model.DataTypeString},
		{Name: argTypeConnectionID, Type: model.DataTypeI4},
		{Name: argTypeAVTransportID, Type: model.DataTypeI4},
		{Name: argTypeRcsID, Type: model.DataTypeI4},
	}
	for _, meta := range vars {
		if err := svc.AddStateVariable(model.NewStateVariable(meta)); err != nil {
			return nil, err
		}
	}

	actions := []*model.Action{
		model.NewAction(&model.ActionMetadata{
			Name: "GetProtocolInfo",
			Out: []model.Argument{
				{Name: "Source", RelatedStateVariable: varSourceProtocolInfo},
				{Name: "Sink", RelatedStateVariable: varSinkProtocolInfo},
			},
		}, s.handleGetProtocolInfo),
		model.NewAction(&model.ActionMetadata{
			Name: "PrepareForConnection",
			In: []model.Argument{
				{Name: "RemoteProtocolInfo", RelatedStateVariable: argTypeProtocolInfo},
				{Name: "PeerConnectionManager", RelatedStateVariable: argTypeConnectionManager},
				{Name: "PeerConnectionID", RelatedStateVariable: argTypeConnectionID},
				{Name: "Direction", RelatedStateVariable: argTypeDirection},
			},
			Out: []model.Argument{
				{Name: "ConnectionID", RelatedStateVariable: argTypeConnectionID},
				{Name: "AVTransportID", RelatedStateVariable: argTypeAVTransportID},
				{Name: "RcsID", RelatedStateVariable: argTypeRcsID},
			},
		}, s.handlePrepareForConnection),
		model.NewAction(&model.ActionMetadata{
			Name: "ConnectionComplete",
			In:   []model.Argument{{Name: "ConnectionID", RelatedStateVariable: argTypeConnectionID}},
		}, s.handleConnectionComplete),
		model.NewAction(&model.ActionMetadata{
			Name: "GetCurrentConnectionIDs",
			Out:  []model.Argument{{Name: "ConnectionIDs", RelatedStateVariable: varCurrentConnectionIDs}},
		}, s.handleGetCurrentConnectionIDs),
		model.NewAction(&model.ActionMetadata{
			Name: "GetCurrentConnectionInfo",
			In:   []model.Argument{{Name: "ConnectionID", RelatedStateVariable: argTypeConnectionID}},
			Out: []model.Argument{
				{Name: "RcsID", RelatedStateVariable: argTypeRcsID},
				{Name: "AVTransportID", RelatedStateVariable: argTypeAVTransportID},
				{Name: "ProtocolInfo", RelatedStateVariable: argTypeProtocolInfo},
				{Name: "PeerConnectionManager", RelatedStateVariable: argTypeConnectionManager},
				{Name: "PeerConnectionID", RelatedStateVariable: argTypeConnectionID},
				{Name: "Direction", RelatedStateVariable: argTypeDirection},
				{Name: "Status", RelatedStateVariable: argTypeConnectionStatus},
			},
		}, s.handleGetCurrentConnectionInfo),
	}
	for _, a := range actions {
		if err := svc.AddAction(a); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func (s *Service) handleGetProtocolInfo(ctx context.Context, in map[string]any) (map[string]any, error) {
	source, err := s.svc.Get(varSourceProtocolInfo)
	if err != nil {
		return nil, err
	}
	return map[string]any{"Source": source, "Sink": ""}, nil
}

func (s *Service) handlePrepareForConnection(ctx context.Context, in map[string]any) (map[string]any, error) {
	c, err := s.Prepare(
		in["RemoteProtocolInfo"].(string),
		in["PeerConnectionManager"].(string),
		int32(in["PeerConnectionID"].(int64)),
		in["Direction"].(string),
	)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"ConnectionID":  c.ID,
		"AVTransportID": c.AVTransportID,
		"RcsID":         c.RcsID,
	}, nil
}

func (s *Service) handleConnectionComplete(ctx context.Context, in map[string]any) (map[string]any, error) {
	if err := s.Complete(int32(in["ConnectionID"].(int64))); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func (s *Service) handleGetCurrentConnectionIDs(ctx context.Context, in map[string]any) (map[string]any, error) {
	ids, err := s.svc.Get(varCurrentConnectionIDs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ConnectionIDs": ids}, nil
}

func (s *Service) handleGetCurrentConnectionInfo(ctx context.Context, in map[string]any) (map[string]any, error) {
	c, err := s.Info(int32(in["ConnectionID"].(int64)))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"RcsID":                 c.RcsID,
		"AVTransportID":         c.AVTransportID,
		"ProtocolInfo":          c.ProtocolInfo,
		"PeerConnectionManager": c.PeerConnectionManager,
		"PeerConnectionID":      c.PeerConnectionID,
		"Direction":             c.Direction,
		"Status":                c.Status,
	}, nil
}
