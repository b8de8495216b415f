package log

import (
	"time"
)

// Event represents a protocol event captured on one of the UPnP protocols.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ExchangeID correlates the events of one request/response exchange
	// (UUID). Empty for unsolicited traffic such as SSDP announcements.
	ExchangeID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Protocol that carried the event.
	Protocol Protocol `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// UDN is the local device involved, if known.
	UDN string `cbor:"7,keyasint,omitempty"`

	// ServiceID is the local service involved, if known.
	ServiceID string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Datagram    *DatagramEvent    `cbor:"10,keyasint,omitempty"` // SSDP
	Action      *ActionEvent      `cbor:"11,keyasint,omitempty"` // SOAP
	Notify      *NotifyEvent      `cbor:"12,keyasint,omitempty"` // GENA
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"` // Subscription/device lifecycle
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors on any protocol
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Protocol identifies the protocol an event was captured on.
type Protocol uint8

const (
	// ProtocolSSDP is multicast/unicast discovery over UDP.
	ProtocolSSDP Protocol = 0
	// ProtocolSOAP is action control over HTTP.
	ProtocolSOAP Protocol = 1
	// ProtocolGENA is subscription and event delivery over HTTP.
	ProtocolGENA Protocol = 2
	// ProtocolHTTP is plain HTTP such as description documents.
	ProtocolHTTP Protocol = 3
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolSSDP:
		return "SSDP"
	case ProtocolSOAP:
		return "SOAP"
	case ProtocolGENA:
		return "GENA"
	case ProtocolHTTP:
		return "HTTP"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DatagramEvent captures an SSDP datagram.
type DatagramEvent struct {
	// Method is NOTIFY, M-SEARCH or empty for a search response.
	Method string `cbor:"1,keyasint,omitempty"`

	// NTS is ssdp:alive or ssdp:byebye for NOTIFY.
	NTS string `cbor:"2,keyasint,omitempty"`

	// Target is the NT or ST header.
	Target string `cbor:"3,keyasint,omitempty"`

	// USN is the unique service name.
	USN string `cbor:"4,keyasint,omitempty"`

	// Size is the datagram size in bytes.
	Size int `cbor:"5,keyasint"`

	// Dropped indicates an inbound datagram that was discarded.
	Dropped bool `cbor:"6,keyasint,omitempty"`
}

// ActionEvent captures a SOAP action request or its outcome.
type ActionEvent struct {
	// Type distinguishes request/response/fault.
	Type MessageType `cbor:"1,keyasint"`

	// Name is the action name.
	Name string `cbor:"2,keyasint"`

	// ServiceType is the service type from the SOAPACTION header.
	ServiceType string `cbor:"3,keyasint,omitempty"`

	// Args holds the argument values as sent on the wire.
	Args map[string]string `cbor:"4,keyasint,omitempty"`

	// FaultCode is the UPnP error code for faults.
	FaultCode int `cbor:"5,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send
	// (response and fault only).
	ProcessingTime *time.Duration `cbor:"6,keyasint,omitempty"`
}

// NotifyEvent captures a GENA request or NOTIFY delivery.
type NotifyEvent struct {
	// Type distinguishes request/response/notification.
	Type MessageType `cbor:"1,keyasint"`

	// Method is SUBSCRIBE, UNSUBSCRIBE or NOTIFY.
	Method string `cbor:"2,keyasint"`

	// SID is the subscription identifier.
	SID string `cbor:"3,keyasint,omitempty"`

	// Seq is the event sequence number (NOTIFY only).
	Seq *uint32 `cbor:"4,keyasint,omitempty"`

	// Variables lists the state variables carried (NOTIFY only).
	Variables []string `cbor:"5,keyasint,omitempty"`

	// StatusCode is the HTTP status of the response.
	StatusCode int `cbor:"6,keyasint,omitempty"`
}

// MessageType distinguishes request/response/notification.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response message.
	MessageTypeResponse MessageType = 1
	// MessageTypeNotification indicates a notification message.
	MessageTypeNotification MessageType = 2
	// MessageTypeFault indicates a SOAP fault response.
	MessageTypeFault MessageType = 3
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	case MessageTypeFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures subscription and device lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySubscription indicates a GENA subscription state change.
	StateEntitySubscription StateEntity = 0
	// StateEntityDevice indicates a device registration change.
	StateEntityDevice StateEntity = 1
	// StateEntityPeer indicates a remote SSDP peer appearing or leaving.
	StateEntityPeer StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	case StateEntityDevice:
		return "DEVICE"
	case StateEntityPeer:
		return "PEER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors on any protocol.
type ErrorEventData struct {
	// Protocol where the error occurred.
	Protocol Protocol `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
