package commands

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/upnp-media/upnp-go/pkg/log"
)

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, []log.Event{
		{Timestamp: testTime, ExchangeID: "x-1", Protocol: log.ProtocolSOAP, Action: &log.ActionEvent{Name: "Browse"}},
		{Timestamp: testTime, Protocol: log.ProtocolSSDP, Datagram: &log.DatagramEvent{Method: "NOTIFY", Size: 10}},
	})
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	var lines []log.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e log.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].ExchangeID != "x-1" || lines[0].Action == nil || lines[0].Action.Name != "Browse" {
		t.Errorf("unexpected first event: %+v", lines[0])
	}
}

func TestExportToCSV(t *testing.T) {
	seq := uint32(3)
	code := 412
	path := createTestLogFile(t, []log.Event{
		{Timestamp: testTime, Protocol: log.ProtocolSOAP, Action: &log.ActionEvent{Type: log.MessageTypeFault, Name: "Browse", FaultCode: 701}},
		{Timestamp: testTime, Protocol: log.ProtocolGENA, Direction: log.DirectionOut, Notify: &log.NotifyEvent{Method: "NOTIFY", SID: "uuid:s", Seq: &seq}},
		{Timestamp: testTime, Protocol: log.ProtocolGENA, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "precondition failed", Code: &code}},
	})
	outPath := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" || len(rows[0]) != len(csvHeader) {
		t.Errorf("unexpected header: %v", rows[0])
	}

	col := func(name string) int {
		for i, h := range csvHeader {
			if h == name {
				return i
			}
		}
		t.Fatalf("no column %s", name)
		return -1
	}
	if rows[1][col("type")] != "FAULT" || rows[1][col("name")] != "Browse" || rows[1][col("code")] != "701" {
		t.Errorf("unexpected fault row: %v", rows[1])
	}
	if rows[2][col("sid")] != "uuid:s" || rows[2][col("seq")] != "3" {
		t.Errorf("unexpected notify row: %v", rows[2])
	}
	if rows[3][col("code")] != "412" || rows[3][col("category")] != "ERROR" {
		t.Errorf("unexpected error row: %v", rows[3])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, []log.Event{{Timestamp: testTime}})
	if err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("expected error for unknown format")
	}
}
