// Package commands implements the upnp-mediaserver log subcommands.
package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/upnp-media/upnp-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Protocol  *log.Protocol
	Direction *log.Direction
	Category  *log.Category
}

func (f ViewFilter) matches(e log.Event) bool {
	if f.Protocol != nil && e.Protocol != *f.Protocol {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	return true
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [%s] %-3s %s %s", ts, shortenID(event.ExchangeID), event.Direction, event.Protocol, typeLabel(event))
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, " %s", event.RemoteAddr)
	}
	fmt.Fprintln(w)

	switch {
	case event.Datagram != nil:
		formatDatagramDetails(w, event.Datagram)
	case event.Action != nil:
		formatActionDetails(w, event.Action)
	case event.Notify != nil:
		formatNotifyDetails(w, event.Notify)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}
	if event.UDN != "" {
		fmt.Fprintf(w, "  Device: %s", event.UDN)
		if event.ServiceID != "" {
			fmt.Fprintf(w, "  Service: %s", event.ServiceID)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
}

func typeLabel(event log.Event) string {
	switch {
	case event.Datagram != nil:
		if event.Datagram.Method == "" {
			return "SEARCH-RESPONSE"
		}
		return event.Datagram.Method
	case event.Action != nil:
		return event.Action.Type.String()
	case event.Notify != nil:
		return event.Notify.Method
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of an exchange ID, or "-".
func shortenID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatDatagramDetails(w io.Writer, d *log.DatagramEvent) {
	if d.NTS != "" {
		fmt.Fprintf(w, "  NTS: %s\n", d.NTS)
	}
	if d.Target != "" {
		fmt.Fprintf(w, "  Target: %s\n", d.Target)
	}
	if d.USN != "" {
		fmt.Fprintf(w, "  USN: %s\n", d.USN)
	}
	fmt.Fprintf(w, "  Size: %d bytes", d.Size)
	if d.Dropped {
		fmt.Fprint(w, " (dropped)")
	}
	fmt.Fprintln(w)
}

func formatActionDetails(w io.Writer, a *log.ActionEvent) {
	fmt.Fprintf(w, "  Action: %s\n", a.Name)
	if a.ServiceType != "" {
		fmt.Fprintf(w, "  ServiceType: %s\n", a.ServiceType)
	}
	if a.Type == log.MessageTypeFault {
		fmt.Fprintf(w, "  Fault: %d\n", a.FaultCode)
	}
	if len(a.Args) > 0 {
		fmt.Fprintf(w, "  Args: %s\n", formatArgs(a.Args))
	}
	if a.ProcessingTime != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*a.ProcessingTime))
	}
}

func formatNotifyDetails(w io.Writer, n *log.NotifyEvent) {
	fmt.Fprintf(w, "  %s", n.Type)
	if n.SID != "" {
		fmt.Fprintf(w, "  SID: %s", n.SID)
	}
	if n.Seq != nil {
		fmt.Fprintf(w, "  SEQ: %d", *n.Seq)
	}
	fmt.Fprintln(w)
	if len(n.Variables) > 0 {
		fmt.Fprintf(w, "  Variables: %s\n", strings.Join(n.Variables, ", "))
	}
	if n.StatusCode != 0 {
		fmt.Fprintf(w, "  Status: %d\n", n.StatusCode)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Protocol: %s\n", err.Protocol)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatArgs renders action arguments in name order.
func formatArgs(args map[string]string) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%q", name, args[name])
	}
	return strings.Join(parts, " ")
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseProtocol parses a protocol name (case-insensitive).
func ParseProtocol(s string) (log.Protocol, error) {
	switch strings.ToLower(s) {
	case "ssdp":
		return log.ProtocolSSDP, nil
	case "soap":
		return log.ProtocolSOAP, nil
	case "gena":
		return log.ProtocolGENA, nil
	case "http":
		return log.ProtocolHTTP, nil
	default:
		return 0, fmt.Errorf("invalid protocol: %s (must be ssdp, soap, gena or http)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state or error)", s)
	}
}

// RunView prints every event matching filter.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if filter.matches(event) {
			formatEvent(output, event)
		}
	}
	return nil
}
