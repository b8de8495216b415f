package log

// Logger receives every SSDP datagram, SOAP exchange and GENA delivery the
// server handles. A nil Logger turns capture off.
type Logger interface {
	// Log is called from network read loops, concurrently and inline.
	// It must return promptly.
	Log(event Event)
}

// NoopLogger drops everything. Its zero value is ready to use.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// OrNoop substitutes NoopLogger for a nil l.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

var _ Logger = NoopLogger{}
