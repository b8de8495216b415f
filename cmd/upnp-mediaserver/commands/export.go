package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/upnp-media/upnp-go/pkg/log"
)

// RunExport exports the log file to jsonl or csv. An empty output writes
// to stdout.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{
	"timestamp", "exchange_id", "direction", "protocol", "category",
	"remote_addr", "udn", "service_id", "type", "name", "sid", "seq", "code",
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(event log.Event) []string {
	var name, sid, seq, code string
	switch {
	case event.Datagram != nil:
		name = event.Datagram.Target
	case event.Action != nil:
		name = event.Action.Name
		if event.Action.FaultCode != 0 {
			code = strconv.Itoa(event.Action.FaultCode)
		}
	case event.Notify != nil:
		sid = event.Notify.SID
		if event.Notify.Seq != nil {
			seq = strconv.FormatUint(uint64(*event.Notify.Seq), 10)
		}
		if event.Notify.StatusCode != 0 {
			code = strconv.Itoa(event.Notify.StatusCode)
		}
	case event.StateChange != nil:
		name = event.StateChange.NewState
	case event.Error != nil:
		name = event.Error.Message
		if event.Error.Code != nil {
			code = strconv.Itoa(*event.Error.Code)
		}
	}
	return []string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.ExchangeID,
		event.Direction.String(),
		event.Protocol.String(),
		event.Category.String(),
		event.RemoteAddr,
		event.UDN,
		event.ServiceID,
		typeLabel(event),
		name,
		sid,
		seq,
		code,
	}
}
