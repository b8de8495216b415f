package didl

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMalformedProtocolInfo is returned for protocolInfo strings without four
// fields.
var ErrMalformedProtocolInfo = errors.New("malformed protocolInfo")

// DLNA additional info attached to wildcard protocolInfo entries when a
// source list is published: streaming transfer, byte-seek support.
const dlnaDefaultInfo = "DLNA.ORG_OP=01;DLNA.ORG_FLAGS=01700000000000000000000000000000"

// ProtocolInfo is a "protocol:network:contentFormat:additionalInfo" tuple.
type ProtocolInfo struct {
	Protocol       string
	Network        string
	ContentFormat  string
	AdditionalInfo string
}

// ParseProtocolInfo splits a protocolInfo string.
func ParseProtocolInfo(s string) (ProtocolInfo, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 4)
	if len(parts) != 4 {
		return ProtocolInfo{}, fmt.Errorf("%w: %q", ErrMalformedProtocolInfo, s)
	}
	return ProtocolInfo{
		Protocol:       parts[0],
		Network:        parts[1],
		ContentFormat:  parts[2],
		AdditionalInfo: parts[3],
	}, nil
}

// String renders the four-field form.
func (p ProtocolInfo) String() string {
	return p.Protocol + ":" + p.Network + ":" + p.ContentFormat + ":" + p.AdditionalInfo
}

func fieldMatches(a, b string) bool {
	return a == "*" || b == "*" || strings.EqualFold(a, b)
}

// Matches reports whether two entries are compatible. "*" matches any value
// in the first three fields; additional info is not compared.
func (p ProtocolInfo) Matches(other ProtocolInfo) bool {
	return fieldMatches(p.Protocol, other.Protocol) &&
		fieldMatches(p.Network, other.Network) &&
		fieldMatches(p.ContentFormat, other.ContentFormat)
}

// WithDLNA returns p with DLNA flags in place of a wildcard additional info
// field for http-get entries.
func (p ProtocolInfo) WithDLNA() ProtocolInfo {
	if p.Protocol == "http-get" && (p.AdditionalInfo == "*" || p.AdditionalInfo == "") {
		p.AdditionalInfo = dlnaDefaultInfo
	}
	return p
}

// ProtocolInfoList renders a comma separated, de-duplicated, sorted list of
// protocolInfo entries as published in SourceProtocolInfo.
func ProtocolInfoList(entries []ProtocolInfo) string {
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		s := e.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// ParseProtocolInfoList parses a comma separated protocolInfo list. Empty
// entries are skipped.
func ParseProtocolInfoList(s string) ([]ProtocolInfo, error) {
	var out []ProtocolInfo
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParseProtocolInfo(part)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
