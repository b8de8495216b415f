package log

import (
	"testing"
	"time"
)

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, Direction: DirectionIn, Protocol: ProtocolSSDP, Category: CategoryMessage, UDN: "uuid:a"},
		{Timestamp: base.Add(time.Second), ExchangeID: "x-1", Direction: DirectionIn, Protocol: ProtocolSOAP, Category: CategoryMessage, UDN: "uuid:a"},
		{Timestamp: base.Add(2 * time.Second), ExchangeID: "x-1", Direction: DirectionOut, Protocol: ProtocolSOAP, Category: CategoryError, UDN: "uuid:a"},
		{Timestamp: base.Add(3 * time.Second), Direction: DirectionOut, Protocol: ProtocolGENA, Category: CategoryMessage, UDN: "uuid:b",
			Notify: &NotifyEvent{Method: "NOTIFY", SID: "uuid:sid-1"}},
	}
	path := createTestLogFile(t, events)

	soap := ProtocolSOAP
	out := DirectionOut
	errCat := CategoryError
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"All", Filter{}, 4},
		{"Protocol", Filter{Protocol: &soap}, 2},
		{"Direction", Filter{Direction: &out}, 2},
		{"Category", Filter{Category: &errCat}, 1},
		{"Exchange", Filter{ExchangeID: "x-1"}, 2},
		{"UDN", Filter{UDN: "uuid:b"}, 1},
		{"SID", Filter{SID: "uuid:sid-1"}, 1},
		{"TimeRange", Filter{TimeStart: &start, TimeEnd: &end}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader: %v", err)
			}
			defer r.Close()
			if got := len(readAll(t, r)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader("/nonexistent/capture.ulog"); err == nil {
		t.Error("NewReader on missing file succeeded")
	}
}
