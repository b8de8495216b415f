package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/upnp-media/upnp-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByProtocol  map[log.Protocol]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Actions           map[string]*ActionStats
	Subscriptions     map[string]*SubscriptionStats
	Devices           map[string]int
	DroppedDatagrams  int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ActionStats aggregates the SOAP calls of one action.
type ActionStats struct {
	Requests int
	Faults   int
	Total    time.Duration
	Timed    int
}

// SubscriptionStats aggregates the GENA traffic of one SID.
type SubscriptionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Notifies  int
	LastSeq   uint32
	Failures  int
}

func newStats() *Stats {
	return &Stats{
		EventsByProtocol:  make(map[log.Protocol]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Actions:           make(map[string]*ActionStats),
		Subscriptions:     make(map[string]*SubscriptionStats),
		Devices:           make(map[string]int),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByProtocol[event.Protocol]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}
	if event.UDN != "" {
		s.Devices[event.UDN]++
	}

	switch {
	case event.Datagram != nil:
		if event.Datagram.Dropped {
			s.DroppedDatagrams++
		}
	case event.Action != nil:
		a, ok := s.Actions[event.Action.Name]
		if !ok {
			a = &ActionStats{}
			s.Actions[event.Action.Name] = a
		}
		switch event.Action.Type {
		case log.MessageTypeRequest:
			a.Requests++
		case log.MessageTypeFault:
			a.Faults++
		}
		if event.Action.ProcessingTime != nil {
			a.Total += *event.Action.ProcessingTime
			a.Timed++
		}
	case event.Notify != nil && event.Notify.SID != "":
		sub, ok := s.Subscriptions[event.Notify.SID]
		if !ok {
			sub = &SubscriptionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Subscriptions[event.Notify.SID] = sub
		}
		if event.Timestamp.After(sub.LastSeen) {
			sub.LastSeen = event.Timestamp
		}
		if event.Notify.Method == "NOTIFY" && event.Direction == log.DirectionOut {
			sub.Notifies++
			if event.Notify.Seq != nil {
				sub.LastSeq = *event.Notify.Seq
			}
		}
		if event.Notify.StatusCode >= 300 {
			sub.Failures++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== UPnP Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Protocol:")
	for _, p := range []log.Protocol{log.ProtocolSSDP, log.ProtocolSOAP, log.ProtocolGENA, log.ProtocolHTTP} {
		if count := stats.EventsByProtocol[p]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", p.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if stats.DroppedDatagrams > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Dropped Datagrams: %d\n", stats.DroppedDatagrams)
	}

	if len(stats.Actions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Actions:")
		for _, name := range sortedKeys(stats.Actions) {
			a := stats.Actions[name]
			fmt.Fprintf(w, "  %-28s %d calls, %d faults", name, a.Requests, a.Faults)
			if a.Timed > 0 {
				fmt.Fprintf(w, ", avg %s", formatDuration(a.Total/time.Duration(a.Timed)))
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Subscriptions: %d\n", len(stats.Subscriptions))
	if len(stats.Subscriptions) > 0 {
		sids := sortedKeys(stats.Subscriptions)
		sort.SliceStable(sids, func(i, j int) bool {
			return stats.Subscriptions[sids[i]].FirstSeen.Before(stats.Subscriptions[sids[j]].FirstSeen)
		})
		for _, sid := range sids {
			sub := stats.Subscriptions[sid]
			duration := sub.LastSeen.Sub(sub.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d notifies, last SEQ %d, duration %s", sid, sub.Notifies, sub.LastSeq, duration)
			if sub.Failures > 0 {
				fmt.Fprintf(w, ", %d failures", sub.Failures)
			}
			fmt.Fprintln(w)
		}
	}

	if len(stats.Devices) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Devices:")
		for _, udn := range sortedKeys(stats.Devices) {
			fmt.Fprintf(w, "  %s %d events\n", udn, stats.Devices[udn])
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
