package log

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456789, time.UTC)
	seq := uint32(4)
	elapsed := 3 * time.Millisecond
	code := 701

	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "Datagram",
			event: Event{
				Timestamp:  ts,
				Direction:  DirectionOut,
				Protocol:   ProtocolSSDP,
				Category:   CategoryMessage,
				RemoteAddr: "239.255.255.250:1900",
				UDN:        "uuid:device-001",
				Datagram: &DatagramEvent{
					Method: "NOTIFY",
					NTS:    "ssdp:alive",
					Target: "upnp:rootdevice",
					USN:    "uuid:device-001::upnp:rootdevice",
					Size:   312,
				},
			},
		},
		{
			name: "Action",
			event: Event{
				Timestamp:  ts,
				ExchangeID: "abc12345-def6-7890-abcd-ef1234567890",
				Direction:  DirectionOut,
				Protocol:   ProtocolSOAP,
				Category:   CategoryMessage,
				ServiceID:  "urn:upnp-org:serviceId:ContentDirectory",
				Action: &ActionEvent{
					Type:           MessageTypeFault,
					Name:           "Browse",
					FaultCode:      701,
					ProcessingTime: &elapsed,
				},
			},
		},
		{
			name: "Notify",
			event: Event{
				Timestamp: ts,
				Direction: DirectionOut,
				Protocol:  ProtocolGENA,
				Category:  CategoryMessage,
				Notify: &NotifyEvent{
					Type:      MessageTypeNotification,
					Method:    "NOTIFY",
					SID:       "uuid:sid-1",
					Seq:       &seq,
					Variables: []string{"SystemUpdateID"},
				},
			},
		},
		{
			name: "Error",
			event: Event{
				Timestamp: ts,
				Protocol:  ProtocolSOAP,
				Category:  CategoryError,
				Error:     &ErrorEventData{Protocol: ProtocolSOAP, Message: "no such object", Code: &code, Context: "Browse"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}
			decoded, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			if diff := cmp.Diff(tt.event, decoded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("DecodeEvent accepted garbage")
	}
}

func TestEnumStrings(t *testing.T) {
	if ProtocolGENA.String() != "GENA" {
		t.Errorf("ProtocolGENA = %q", ProtocolGENA.String())
	}
	if Protocol(99).String() != "UNKNOWN" {
		t.Errorf("Protocol(99) = %q", Protocol(99).String())
	}
	if MessageTypeFault.String() != "FAULT" {
		t.Errorf("MessageTypeFault = %q", MessageTypeFault.String())
	}
	if StateEntityPeer.String() != "PEER" {
		t.Errorf("StateEntityPeer = %q", StateEntityPeer.String())
	}
}
