package ssdp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// SSDP multicast endpoints.
const (
	Port       = 1900
	GroupIPv4  = "239.255.255.250"
	GroupIPv6  = "ff05::c"
	hostHeader = "239.255.255.250:1900"
	hostIPv6   = "[ff05::c]:1900"
)

// Notification subtypes and well-known targets.
const (
	NTSAlive  = "ssdp:alive"
	NTSByebye = "ssdp:byebye"

	TargetAll        = "ssdp:all"
	TargetRootDevice = "upnp:rootdevice"

	manDiscover = `"ssdp:discover"`
)

// Message kinds.
const (
	MethodNotify = "NOTIFY"
	MethodSearch = "M-SEARCH"
)

// Parse errors.
var (
	ErrMalformed = errors.New("malformed SSDP datagram")
	ErrMissingMX = errors.New("missing or invalid MX")
	ErrBadMAN    = errors.New("missing or invalid MAN")
)

// Message is a parsed SSDP datagram: a NOTIFY or M-SEARCH request, or a
// search response.
type Message struct {
	// Method is NOTIFY or M-SEARCH. Empty for responses.
	Method string

	// URI is the request target, "*" for multicast requests.
	URI string

	// StatusCode is set for responses.
	StatusCode int

	// Header holds the canonicalized headers.
	Header textproto.MIMEHeader
}

// IsResponse reports whether the message is a search response.
func (m *Message) IsResponse() bool {
	return m.Method == ""
}

// Get returns the first value of a header with whitespace trimmed.
func (m *Message) Get(key string) string {
	return strings.TrimSpace(m.Header.Get(key))
}

// NT returns the notification type, or the search target for responses.
func (m *Message) NT() string {
	if m.IsResponse() {
		return m.Get("ST")
	}
	return m.Get("NT")
}

// USN returns the unique service name.
func (m *Message) USN() string {
	return m.Get("USN")
}

// MaxAge returns the max-age directive of CACHE-CONTROL, or 0.
func (m *Message) MaxAge() time.Duration {
	for _, part := range strings.Split(m.Get("Cache-Control"), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "max-age") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return 0
		}
		return time.Duration(n) * time.Second
	}
	return 0
}

// MX returns the validated MX header of an M-SEARCH.
func (m *Message) MX() (int, error) {
	raw := m.Get("MX")
	if raw == "" {
		return 0, ErrMissingMX
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMissingMX, raw)
	}
	return n, nil
}

// Discover checks the MAN header of an M-SEARCH.
func (m *Message) Discover() error {
	if m.Get("MAN") != manDiscover {
		return ErrBadMAN
	}
	return nil
}

// ParseMessage parses an SSDP datagram. The start line must be a NOTIFY or
// M-SEARCH request line or an HTTP/1.x status line.
func ParseMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))
	line, err := tp.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: start line %q", ErrMalformed, line)
	}

	msg := &Message{}
	switch {
	case strings.HasPrefix(parts[0], "HTTP/1."):
		code, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: status %q", ErrMalformed, parts[1])
		}
		msg.StatusCode = code
	case parts[0] == MethodNotify || parts[0] == MethodSearch:
		if !strings.HasPrefix(parts[2], "HTTP/1.") {
			return nil, fmt.Errorf("%w: version %q", ErrMalformed, parts[2])
		}
		msg.Method = parts[0]
		msg.URI = parts[1]
	default:
		return nil, fmt.Errorf("%w: method %q", ErrMalformed, parts[0])
	}

	hdr, err := tp.ReadMIMEHeader()
	if err != nil && len(hdr) == 0 {
		return nil, fmt.Errorf("%w: headers: %v", ErrMalformed, err)
	}
	msg.Header = hdr
	return msg, nil
}

// header is one ordered header line of an outbound message.
type header struct {
	key, value string
}

func render(start string, headers []header) []byte {
	var buf bytes.Buffer
	buf.WriteString(start)
	buf.WriteString("\r\n")
	for _, h := range headers {
		buf.WriteString(h.key)
		buf.WriteString(": ")
		buf.WriteString(h.value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func cacheControl(maxAge time.Duration) string {
	return "max-age=" + strconv.Itoa(int(maxAge/time.Second))
}

// buildNotify renders a NOTIFY for one advertisement target.
func buildNotify(host, nts string, t target, location, server string, maxAge time.Duration) []byte {
	headers := []header{{"HOST", host}}
	if nts == NTSAlive {
		headers = append(headers,
			header{"CACHE-CONTROL", cacheControl(maxAge)},
			header{"LOCATION", location},
			header{"SERVER", server},
		)
	}
	headers = append(headers,
		header{"NT", t.nt},
		header{"NTS", nts},
		header{"USN", t.usn},
	)
	return render("NOTIFY * HTTP/1.1", headers)
}

// buildResponse renders a unicast search response.
func buildResponse(st, usn, location, server string, maxAge time.Duration, now time.Time) []byte {
	return render("HTTP/1.1 200 OK", []header{
		{"CACHE-CONTROL", cacheControl(maxAge)},
		{"DATE", now.UTC().Format(http.TimeFormat)},
		{"EXT", ""},
		{"LOCATION", location},
		{"SERVER", server},
		{"ST", st},
		{"USN", usn},
	})
}

// buildSearch renders a multicast M-SEARCH.
func buildSearch(host, st string, mx int, userAgent string) []byte {
	headers := []header{
		{"HOST", host},
		{"MAN", manDiscover},
		{"MX", strconv.Itoa(mx)},
		{"ST", st},
	}
	if userAgent != "" {
		headers = append(headers, header{"USER-AGENT", userAgent})
	}
	return render("M-SEARCH * HTTP/1.1", headers)
}
