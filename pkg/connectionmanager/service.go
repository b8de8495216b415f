package connectionmanager

import (
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/upnp-media/upnp-go/pkg/didl"
	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/soap"
)

// Connection directions.
const (
	DirectionInput  = "Input"
	DirectionOutput = "Output"
)

// Connection status values.
const (
	StatusOK                    = "OK"
	StatusContentFormatMismatch = "ContentFormatMismatch"
	StatusInsufficientBandwidth = "InsufficientBandwidth"
	StatusUnreliableChannel     = "UnreliableChannel"
	StatusUnknown               = "Unknown"
)

// State variable names.
const (
	varSourceProtocolInfo    = "SourceProtocolInfo"
	varSinkProtocolInfo      = "SinkProtocolInfo"
	varCurrentConnectionIDs  = "CurrentConnectionIDs"
	argTypeConnectionStatus  = "A_ARG_TYPE_ConnectionStatus"
	argTypeConnectionManager = "A_ARG_TYPE_ConnectionManager"
	argTypeDirection         = "A_ARG_TYPE_Direction"
	argTypeProtocolInfo      = "A_ARG_TYPE_ProtocolInfo"
	argTypeConnectionID      = "A_ARG_TYPE_ConnectionID"
	argTypeAVTransportID     = "A_ARG_TYPE_AVTransportID"
	argTypeRcsID             = "A_ARG_TYPE_RcsID"
)

// Connection is one entry of the connection table.
type Connection struct {
	ID                    int32
	ProtocolInfo          string
	PeerConnectionManager string
	PeerConnectionID      int32
	Direction             string
	Status                string
	AVTransportID         int32
	RcsID                 int32
}

// Config configures the ConnectionManager service.
type Config struct {
	// SourceProtocolInfo lists the protocolInfo of served content.
	SourceProtocolInfo []string

	// Logger is used for operational logging. Nil disables logging.
	Logger *slog.Logger
}

// Service is the ConnectionManager:1 service of a MediaServer.
type Service struct {
	svc    *model.Service
	logger *slog.Logger

	mu          sync.Mutex
	source      []didl.ProtocolInfo
	connections map[int32]*Connection
	nextID      int32
}

// New creates the service. Connection 0 always exists.
func New(config Config) (*Service, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	source, err := sourceList(config.SourceProtocolInfo)
	if err != nil {
		return nil, err
	}
	s := &Service{
		logger: logger,
		source: source,
		connections: map[int32]*Connection{
			0: {
				ID:               0,
				PeerConnectionID: -1,
				Direction:        DirectionOutput,
				Status:           StatusUnknown,
				AVTransportID:    -1,
				RcsID:            -1,
			},
		},
		nextID: 1,
	}
	if s.svc, err = s.build(didl.ProtocolInfoList(source), s.idsWith(-1)); err != nil {
		return nil, err
	}
	return s, nil
}

// Service returns the UPnP service to add to the MediaServer device.
func (s *Service) Service() *model.Service {
	return s.svc
}

// SetSourceProtocolInfo replaces the published source list. Subscribers
// are notified when the rendered list changes.
func (s *Service) SetSourceProtocolInfo(entries []string) error {
	source, err := sourceList(entries)
	if err != nil {
		return err
	}
	return s.svc.Update(func(tx *model.Tx) error {
		s.mu.Lock()
		s.source = source
		s.mu.Unlock()
		return tx.Set(varSourceProtocolInfo, didl.ProtocolInfoList(source))
	})
}

// SourceProtocolInfo returns the published source list.
func (s *Service) SourceProtocolInfo() []didl.ProtocolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]didl.ProtocolInfo(nil), s.source...)
}

// Connections returns a copy of the connection table ordered by id.
func (s *Service) Connections() []Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Connection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Prepare adds a connection for a peer that wants to receive content in
// the given format.
func (s *Service) Prepare(remote, peerManager string, peerID int32, direction string) (*Connection, error) {
	if direction != DirectionOutput {
		return nil, soap.NewError(soap.CodeInvalidCurrentTag, "incompatible direction "+direction)
	}
	pi, err := didl.ParseProtocolInfo(remote)
	if err != nil {
		return nil, soap.NewError(soap.CodeNoSuchObject, "incompatible protocol info")
	}

	var out Connection
	err = s.svc.Update(func(tx *model.Tx) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.supports(pi) {
			return soap.NewError(soap.CodeNoSuchObject, "incompatible protocol info")
		}
		c := &Connection{
			ID:                    s.nextID,
			ProtocolInfo:          remote,
			PeerConnectionManager: peerManager,
			PeerConnectionID:      peerID,
			Direction:             direction,
			Status:                StatusOK,
			AVTransportID:         -1,
			RcsID:                 -1,
		}
		if err := tx.Set(varCurrentConnectionIDs, s.idsWith(c.ID)); err != nil {
			return err
		}
		s.nextID++
		s.connections[c.ID] = c
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("connection prepared", "id", out.ID, "protocolInfo", remote, "peer", peerManager)
	return &out, nil
}

// Complete removes a prepared connection. Connection 0 cannot be removed.
func (s *Service) Complete(id int32) error {
	err := s.svc.Update(func(tx *model.Tx) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.connections[id]; !ok || id == 0 {
			return soap.NewError(soap.CodeParameterMismatch, "invalid connection reference")
		}
		delete(s.connections, id)
		return tx.Set(varCurrentConnectionIDs, s.idsWith(-1))
	})
	if err != nil {
		return err
	}
	s.logger.Debug("connection completed", "id", id)
	return nil
}

// Info returns one connection.
func (s *Service) Info(id int32) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, soap.NewError(soap.CodeParameterMismatch, "invalid connection reference")
	}
	out := *c
	return &out, nil
}

func (s *Service) supports(remote didl.ProtocolInfo) bool {
	for _, local := range s.source {
		if local.Matches(remote) {
			return true
		}
	}
	return false
}

// idsWith renders the connection ids plus extra when extra is not
// negative. Called with mu held.
func (s *Service) idsWith(extra int32) string {
	ids := make([]int, 0, len(s.connections)+1)
	for id := range s.connections {
		ids = append(ids, int(id))
	}
	if extra >= 0 {
		ids = append(ids, int(extra))
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// sourceList parses entries and adds a DLNA tagged variant of every
// http-get entry whose additional info is "*" unless a tagged entry for
// the same format is already present.
func sourceList(entries []string) ([]didl.ProtocolInfo, error) {
	parsed := make([]didl.ProtocolInfo, 0, len(entries))
	for _, e := range entries {
		pi, err := didl.ParseProtocolInfo(e)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, pi)
	}

	out := append([]didl.ProtocolInfo(nil), parsed...)
	for _, pi := range parsed {
		if pi.AdditionalInfo != "*" || tagged(parsed, pi) {
			continue
		}
		if dlna := pi.WithDLNA(); dlna != pi {
			out = append(out, dlna)
		}
	}
	return out, nil
}

func tagged(entries []didl.ProtocolInfo, pi didl.ProtocolInfo) bool {
	for _, e := range entries {
		if e.AdditionalInfo != "*" && e.Protocol == pi.Protocol &&
			e.Network == pi.Network && e.ContentFormat == pi.ContentFormat {
			return true
		}
	}
	return false
}
