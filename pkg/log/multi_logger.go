package log

// MultiLogger hands each event to every wrapped Logger in order. The
// mediaserver command pairs its console adapter with a capture file this way.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger wraps loggers, ignoring nil ones.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Len reports how many loggers are wrapped.
func (m *MultiLogger) Len() int {
	return len(m.loggers)
}

func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
