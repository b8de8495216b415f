package contentdirectory

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/upnp-media/upnp-go/pkg/backend"
	"github.com/upnp-media/upnp-go/pkg/didl"
	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/soap"
)

func formatUint(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

// build assembles the model service: state table and action handlers.
func (s *Service) build() (*model.Service, error) {
	svc := model.NewService(model.ServiceTypeContentDir1, model.ServiceIDContentDirectory)

	vars := []*model.StateVariableMetadata{
		{Name: varSearchCapabilities, Type: model.DataTypeString, Default: strings.Join(s.SearchCapabilities(), ",")},
		{Name: varSortCapabilities, Type: model.DataTypeString, Default: strings.Join(s.SortCapabilities(), ",")},
		{Name: varSystemUpdateID, Type: model.DataTypeUI4, Evented: true, Default: s.systemUpdateID},
		{Name: varContainerUpdateIDs, Type: model.DataTypeString, Evented: true},
		{Name: argTypeObjectID, Type: model.DataTypeString},
		{Name: argTypeResult, Type: model.DataTypeString},
		{Name: argTypeSearchCriteria, Type: model.DataTypeString},
		{Name: argTypeBrowseFlag, Type: model.DataTypeString, AllowedValues: []string{BrowseMetadata, BrowseDirectChildren}},
		{Name: argTypeFilter, Type: model.DataTypeString},
		{Name: argTypeSortCriteria, Type: model.DataTypeString},
		{Name: argTypeIndex, Type: model.DataTypeUI4},
		{Name: argTypeCount, Type: model.DataTypeUI4},
		{Name: argTypeUpdateID, Type: model.DataTypeUI4},
	}
	for _, meta := range vars {
		if err := svc.AddStateVariable(model.NewStateVariable(meta)); err != nil {
			return nil, err
		}
	}

	actions := []*model.Action{
		model.NewAction(&model.ActionMetadata{
			Name: "GetSearchCapabilities",
			Out:  []model.Argument{{Name: "SearchCaps", RelatedStateVariable: varSearchCapabilities}},
		}, s.handleGetSearchCapabilities),
		model.NewAction(&model.ActionMetadata{
			Name: "GetSortCapabilities",
			Out:  []model.Argument{{Name: "SortCaps", RelatedStateVariable: varSortCapabilities}},
		}, s.handleGetSortCapabilities),
		model.NewAction(&model.ActionMetadata{
			Name: "GetSystemUpdateID",
			Out:  []model.Argument{{Name: "Id", RelatedStateVariable: varSystemUpdateID}},
		}, s.handleGetSystemUpdateID),
		model.NewAction(&model.ActionMetadata{
			Name: "Browse",
			In: []model.Argument{
				{Name: "ObjectID", RelatedStateVariable: argTypeObjectID},
				{Name: "BrowseFlag", RelatedStateVariable: argTypeBrowseFlag},
				{Name: "Filter", RelatedStateVariable: argTypeFilter},
				{Name: "StartingIndex", RelatedStateVariable: argTypeIndex},
				{Name: "RequestedCount", RelatedStateVariable: argTypeCount},
				{Name: "SortCriteria", RelatedStateVariable: argTypeSortCriteria},
			},
			Out: resultArgs(),
		}, s.handleBrowse),
		model.NewAction(&model.ActionMetadata{
			Name: "Search",
			In: []model.Argument{
				{Name: "ContainerID", RelatedStateVariable: argTypeObjectID},
				{Name: "SearchCriteria", RelatedStateVariable: argTypeSearchCriteria},
				{Name: "Filter", RelatedStateVariable: argTypeFilter},
				{Name: "StartingIndex", RelatedStateVariable: argTypeIndex},
				{Name: "RequestedCount", RelatedStateVariable: argTypeCount},
				{Name: "SortCriteria", RelatedStateVariable: argTypeSortCriteria},
			},
			Out: resultArgs(),
		}, s.handleSearch),
	}
	if s.writable() {
		actions = append(actions,
			model.NewAction(&model.ActionMetadata{
				Name: "CreateObject",
				In: []model.Argument{
					{Name: "ContainerID", RelatedStateVariable: argTypeObjectID},
					{Name: "Elements", RelatedStateVariable: argTypeResult},
				},
				Out: []model.Argument{
					{Name: "ObjectID", RelatedStateVariable: argTypeObjectID},
					{Name: "Result", RelatedStateVariable: argTypeResult},
				},
			}, s.handleCreateObject),
			model.NewAction(&model.ActionMetadata{
				Name: "DestroyObject",
				In:   []model.Argument{{Name: "ObjectID", RelatedStateVariable: argTypeObjectID}},
			}, s.handleDestroyObject),
		)
	}
	for _, a := range actions {
		if err := svc.AddAction(a); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func resultArgs() []model.Argument {
	return []model.Argument{
		{Name: "Result", RelatedStateVariable: argTypeResult},
		{Name: "NumberReturned", RelatedStateVariable: argTypeCount},
		{Name: "TotalMatches", RelatedStateVariable: argTypeCount},
		{Name: "UpdateID", RelatedStateVariable: argTypeUpdateID},
	}
}

func (s *Service) handleGetSearchCapabilities(ctx context.Context, in map[string]any) (map[string]any, error) {
	return map[string]any{"SearchCaps": strings.Join(s.SearchCapabilities(), ",")}, nil
}

func (s *Service) handleGetSortCapabilities(ctx context.Context, in map[string]any) (map[string]any, error) {
	return map[string]any{"SortCaps": strings.Join(s.SortCapabilities(), ",")}, nil
}

func (s *Service) handleGetSystemUpdateID(ctx context.Context, in map[string]any) (map[string]any, error) {
	return map[string]any{"Id": s.SystemUpdateID()}, nil
}

func (s *Service) handleBrowse(ctx context.Context, in map[string]any) (map[string]any, error) {
	objectID := in["ObjectID"].(string)
	res, err := s.Browse(ctx, objectID, in["BrowseFlag"].(string),
		int(in["StartingIndex"].(int64)), int(in["RequestedCount"].(int64)), in["SortCriteria"].(string))
	if err != nil {
		return nil, s.fault("Browse", objectID, err)
	}
	return s.resultOutputs(res, in["Filter"].(string))
}

func (s *Service) handleSearch(ctx context.Context, in map[string]any) (map[string]any, error) {
	containerID := in["ContainerID"].(string)
	res, err := s.Search(ctx, containerID, in["SearchCriteria"].(string),
		int(in["StartingIndex"].(int64)), int(in["RequestedCount"].(int64)), in["SortCriteria"].(string))
	if err != nil {
		return nil, s.fault("Search", containerID, err)
	}
	return s.resultOutputs(res, in["Filter"].(string))
}

func (s *Service) resultOutputs(res *Result, filter string) (map[string]any, error) {
	doc, err := didl.Encode(res.Objects, didl.ParseFilter(filter))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"Result":         doc,
		"NumberReturned": len(res.Objects),
		"TotalMatches":   res.TotalMatches,
		"UpdateID":       res.UpdateID,
	}, nil
}

func (s *Service) handleCreateObject(ctx context.Context, in map[string]any) (map[string]any, error) {
	containerID := in["ContainerID"].(string)
	objs, err := didl.DecodeString(in["Elements"].(string))
	if err != nil || len(objs) != 1 {
		return nil, soap.NewError(soap.CodeBadMetadata, "Elements must hold one object")
	}
	created, err := s.CreateObject(ctx, containerID, objs[0])
	if err != nil {
		return nil, s.fault("CreateObject", containerID, err)
	}
	doc, err := didl.Encode([]*backend.Item{created}, didl.FilterAll)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ObjectID": created.ID, "Result": doc}, nil
}

func (s *Service) handleDestroyObject(ctx context.Context, in map[string]any) (map[string]any, error) {
	objectID := in["ObjectID"].(string)
	if err := s.DestroyObject(ctx, objectID); err != nil {
		return nil, s.fault("DestroyObject", objectID, err)
	}
	return map[string]any{}, nil
}

// fault maps a backend error to its UPnP error code.
func (s *Service) fault(action, id string, err error) error {
	var code soap.Code
	switch {
	case errors.Is(err, backend.ErrNoSuchObject):
		code = soap.CodeNoSuchObject
	case errors.Is(err, backend.ErrNoSuchContainer):
		// Browse reports unknown ids as 701 whatever their kind.
		code = soap.CodeNoSuchContainer
		if action == "Browse" {
			code = soap.CodeNoSuchObject
		}
	case errors.Is(err, backend.ErrUnsupportedSort):
		code = soap.CodeInvalidSortCriteria
	case errors.Is(err, backend.ErrSearchUnsupported), errors.Is(err, backend.ErrInvalidCriteria):
		code = soap.CodeInvalidSearchCriteria
	case errors.Is(err, backend.ErrRestrictedObject), errors.Is(err, backend.ErrWriteNotSupported):
		code = soap.CodeRestrictedObject
	case errors.Is(err, backend.ErrParentNotContainer):
		code = soap.CodeNoSuchContainer
	default:
		s.logger.Warn("backend failure", "action", action, "id", id, "error", err)
		return soap.NewError(soap.CodeActionFailed, err.Error())
	}
	s.logger.Debug("content request failed", "action", action, "id", id, "code", int(code), "error", err)
	return soap.NewError(code, id)
}
