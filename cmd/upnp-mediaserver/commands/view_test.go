package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/upnp-media/upnp-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cbor")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

var testTime = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func TestFormatDatagramEvent(t *testing.T) {
	event := log.Event{
		Timestamp:  testTime,
		Direction:  log.DirectionOut,
		Protocol:   log.ProtocolSSDP,
		RemoteAddr: "239.255.255.250:1900",
		Datagram: &log.DatagramEvent{
			Method: "NOTIFY",
			NTS:    "ssdp:alive",
			Target: "upnp:rootdevice",
			USN:    "uuid:abc::upnp:rootdevice",
			Size:   312,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:32.123456Z",
		"[-]",
		"OUT SSDP NOTIFY",
		"239.255.255.250:1900",
		"NTS: ssdp:alive",
		"USN: uuid:abc::upnp:rootdevice",
		"312 bytes",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatSearchResponseDropped(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Timestamp: testTime,
		Protocol:  log.ProtocolSSDP,
		Datagram:  &log.DatagramEvent{Size: 20, Dropped: true},
	})
	output := buf.String()
	if !strings.Contains(output, "SEARCH-RESPONSE") {
		t.Errorf("expected search response label, got: %s", output)
	}
	if !strings.Contains(output, "(dropped)") {
		t.Errorf("expected dropped marker, got: %s", output)
	}
}

func TestFormatActionFault(t *testing.T) {
	elapsed := 1500 * time.Microsecond
	event := log.Event{
		Timestamp:  testTime,
		ExchangeID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:  log.DirectionOut,
		Protocol:   log.ProtocolSOAP,
		UDN:        "uuid:dev",
		ServiceID:  "urn:upnp-org:serviceId:ContentDirectory",
		Action: &log.ActionEvent{
			Type:           log.MessageTypeFault,
			Name:           "Browse",
			FaultCode:      701,
			Args:           map[string]string{"ObjectID": "42", "BrowseFlag": "BrowseMetadata"},
			ProcessingTime: &elapsed,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{
		"[abc12345]",
		"OUT SOAP FAULT",
		"Action: Browse",
		"Fault: 701",
		`Args: BrowseFlag="BrowseMetadata" ObjectID="42"`,
		"Duration: 1.500ms",
		"Device: uuid:dev  Service: urn:upnp-org:serviceId:ContentDirectory",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatNotifyEvent(t *testing.T) {
	seq := uint32(7)
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Timestamp: testTime,
		Direction: log.DirectionOut,
		Protocol:  log.ProtocolGENA,
		Notify: &log.NotifyEvent{
			Type:       log.MessageTypeNotification,
			Method:     "NOTIFY",
			SID:        "uuid:sub-1",
			Seq:        &seq,
			Variables:  []string{"SystemUpdateID", "ContainerUpdateIDs"},
			StatusCode: 200,
		},
	})
	output := buf.String()

	for _, want := range []string{"GENA NOTIFY", "SID: uuid:sub-1", "SEQ: 7", "SystemUpdateID, ContainerUpdateIDs", "Status: 200"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatStateChangeEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Timestamp: testTime,
		Protocol:  log.ProtocolGENA,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			OldState: "active",
			NewState: "cancelled",
			Reason:   "delivery failures",
		},
	})
	output := buf.String()

	for _, want := range []string{"State", "Entity: SUBSCRIPTION", "active -> cancelled", "Reason: delivery failures"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestRunViewFilterByProtocol(t *testing.T) {
	path := createTestLogFile(t, []log.Event{
		{Timestamp: testTime, Protocol: log.ProtocolSSDP, Datagram: &log.DatagramEvent{Method: "M-SEARCH"}},
		{Timestamp: testTime, Protocol: log.ProtocolSOAP, Action: &log.ActionEvent{Name: "Browse"}},
		{Timestamp: testTime, Protocol: log.ProtocolSOAP, Direction: log.DirectionOut, Action: &log.ActionEvent{Name: "GetSystemUpdateID"}},
	})

	soap := log.ProtocolSOAP
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Protocol: &soap}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()
	if strings.Contains(output, "M-SEARCH") {
		t.Errorf("SSDP event not filtered: %s", output)
	}
	if !strings.Contains(output, "Action: Browse") || !strings.Contains(output, "Action: GetSystemUpdateID") {
		t.Errorf("expected both SOAP events: %s", output)
	}

	out := log.DirectionOut
	buf.Reset()
	if err := RunView(path, ViewFilter{Protocol: &soap, Direction: &out}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if strings.Contains(buf.String(), "Action: Browse") {
		t.Errorf("inbound event not filtered: %s", buf.String())
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.cbor"), ViewFilter{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		input   string
		want    log.Protocol
		wantErr bool
	}{
		{"ssdp", log.ProtocolSSDP, false},
		{"SOAP", log.ProtocolSOAP, false},
		{"Gena", log.ProtocolGENA, false},
		{"http", log.ProtocolHTTP, false},
		{"mqtt", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseProtocol(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseProtocol(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProtocol(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseProtocol(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseDirectionAndCategory(t *testing.T) {
	if d, err := ParseDirection("IN"); err != nil || d != log.DirectionIn {
		t.Errorf("ParseDirection(IN) = %v, %v", d, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("expected error for invalid direction")
	}
	if c, err := ParseCategory("state"); err != nil || c != log.CategoryState {
		t.Errorf("ParseCategory(state) = %v, %v", c, err)
	}
	if _, err := ParseCategory("control"); err == nil {
		t.Error("expected error for invalid category")
	}
}
