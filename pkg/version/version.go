// Package version provides the product version, the SERVER header token, and
// UPnP architecture version parsing.
package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Current is the UPnP Device Architecture version implemented by this
// library.
const Current = "1.0"

// Product and ProductVersion name this implementation in SERVER and
// USER-AGENT headers.
const (
	Product        = "upnp-go"
	ProductVersion = "0.1.0"
)

// SpecVersion represents a parsed "major.minor" architecture version.
type SpecVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (SpecVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return SpecVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return SpecVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return SpecVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return SpecVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v SpecVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
// UPnP 1.x peers interoperate regardless of minor version.
func (v SpecVersion) Compatible(other SpecVersion) bool {
	return v.Major == other.Major
}

// Token renders a SERVER or USER-AGENT value:
//
//	<os>/<os version> UPnP/1.0 <product>/<product version>
//
// osVersion may be empty.
func Token(osName, osVersion, product, productVersion string) string {
	if osVersion == "" {
		osVersion = "1.0"
	}
	return fmt.Sprintf("%s/%s UPnP/%s %s/%s", osName, osVersion, Current, product, productVersion)
}

// ServerHeader returns the SERVER token of this build.
func ServerHeader() string {
	return Token(osToken(runtime.GOOS), "", Product, ProductVersion)
}

func osToken(goos string) string {
	if goos == "" {
		return "Unknown"
	}
	return strings.ToUpper(goos[:1]) + goos[1:]
}

// UPnPVersion extracts the UPnP architecture version from a SERVER or
// USER-AGENT value. Tokens may be separated by spaces or commas.
func UPnPVersion(header string) (SpecVersion, bool) {
	fields := strings.FieldsFunc(header, func(r rune) bool { return r == ' ' || r == ',' })
	for _, f := range fields {
		name, ver, ok := strings.Cut(f, "/")
		if !ok || !strings.EqualFold(name, "UPnP") {
			continue
		}
		v, err := Parse(ver)
		if err != nil {
			return SpecVersion{}, false
		}
		return v, true
	}
	return SpecVersion{}, false
}
