package commands

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/upnp-media/upnp-go/pkg/log"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
}

func TestFilterBySID(t *testing.T) {
	path := createTestLogFile(t, []log.Event{
		{Timestamp: testTime, Protocol: log.ProtocolGENA, Notify: &log.NotifyEvent{Method: "NOTIFY", SID: "uuid:a"}},
		{Timestamp: testTime, Protocol: log.ProtocolGENA, Notify: &log.NotifyEvent{Method: "NOTIFY", SID: "uuid:b"}},
		{Timestamp: testTime, Protocol: log.ProtocolSOAP, Action: &log.ActionEvent{Name: "Browse"}},
		{Timestamp: testTime, Protocol: log.ProtocolGENA, Notify: &log.NotifyEvent{Method: "UNSUBSCRIBE", SID: "uuid:a"}},
	})
	outPath := filepath.Join(t.TempDir(), "filtered.cbor")

	var buf bytes.Buffer
	if err := RunFilter(path, FilterOptions{Output: outPath, SID: "uuid:a"}, &buf); err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Filtered 2 events") {
		t.Errorf("unexpected report: %s", buf.String())
	}

	events := readAll(t, outPath)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.Notify.SID != "uuid:a" {
			t.Errorf("expected uuid:a, got %s", e.Notify.SID)
		}
	}
}

func TestFilterByTimeRangeAndProtocol(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: base, Protocol: log.ProtocolSSDP},
		{Timestamp: base.Add(10 * time.Minute), Protocol: log.ProtocolSSDP},
		{Timestamp: base.Add(10 * time.Minute), Protocol: log.ProtocolSOAP},
		{Timestamp: base.Add(30 * time.Minute), Protocol: log.ProtocolSSDP},
	})
	outPath := filepath.Join(t.TempDir(), "filtered.cbor")

	err := RunFilter(path, FilterOptions{
		Output:    outPath,
		TimeStart: base.Add(5 * time.Minute).Format(time.RFC3339),
		TimeEnd:   base.Add(20 * time.Minute).Format(time.RFC3339),
		Protocol:  "ssdp",
	}, io.Discard)
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	events := readAll(t, outPath)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].Timestamp.Equal(base.Add(10 * time.Minute)) {
		t.Errorf("unexpected event time %s", events[0].Timestamp)
	}
}

func TestFilterRejectsBadOptions(t *testing.T) {
	path := createTestLogFile(t, []log.Event{{Timestamp: testTime}})
	out := filepath.Join(t.TempDir(), "out.cbor")

	for name, opts := range map[string]FilterOptions{
		"no output": {},
		"time":      {Output: out, TimeStart: "yesterday"},
		"protocol":  {Output: out, Protocol: "ftp"},
		"direction": {Output: out, Direction: "up"},
		"category":  {Output: out, Category: "snapshot"},
	} {
		if err := RunFilter(path, opts, io.Discard); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
