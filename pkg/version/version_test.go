package version

import (
	"strings"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		major uint16
		minor uint16
	}{
		{"1.0", 1, 0},
		{"1.1", 1, 1},
		{"2.0", 2, 0},
		{"10.23", 10, 23},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major {
				t.Errorf("Major = %d, want %d", v.Major, tt.major)
			}
			if v.Minor != tt.minor {
				t.Errorf("Minor = %d, want %d", v.Minor, tt.minor)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"1",
		"abc",
		"1.0.0",
		"1.x",
		"-1.0",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestSpecVersion_String(t *testing.T) {
	v, err := Parse("1.0")
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "1.0" {
		t.Errorf("String() = %q, want %q", v.String(), "1.0")
	}

	v2, err := Parse("10.23")
	if err != nil {
		t.Fatal(err)
	}
	if v2.String() != "10.23" {
		t.Errorf("String() = %q, want %q", v2.String(), "10.23")
	}
}

func TestCompatible_SameMajor(t *testing.T) {
	v1, _ := Parse("1.0")
	v2, _ := Parse("1.1")

	if !v1.Compatible(v2) {
		t.Error("1.0 should be compatible with 1.1")
	}
	if !v2.Compatible(v1) {
		t.Error("1.1 should be compatible with 1.0")
	}
}

func TestCompatible_DifferentMajor(t *testing.T) {
	v1, _ := Parse("1.0")
	v2, _ := Parse("2.0")

	if v1.Compatible(v2) {
		t.Error("1.0 should NOT be compatible with 2.0")
	}
	if v2.Compatible(v1) {
		t.Error("2.0 should NOT be compatible with 1.0")
	}
}

func TestToken(t *testing.T) {
	got := Token("Linux", "6.1", "upnp-go", "0.1.0")
	if got != "Linux/6.1 UPnP/1.0 upnp-go/0.1.0" {
		t.Errorf("Token() = %q", got)
	}
	if got := Token("Linux", "", "x", "1"); got != "Linux/1.0 UPnP/1.0 x/1" {
		t.Errorf("Token() without OS version = %q", got)
	}
}

func TestServerHeader(t *testing.T) {
	h := ServerHeader()
	if !strings.Contains(h, " UPnP/1.0 upnp-go/"+ProductVersion) {
		t.Errorf("ServerHeader() = %q", h)
	}
	v, ok := UPnPVersion(h)
	if !ok || v.String() != Current {
		t.Errorf("UPnPVersion(ServerHeader()) = %v, %v", v, ok)
	}
}

func TestUPnPVersion(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Linux/2.6 UPnP/1.0 Coherence/0.6", "1.0", true},
		{"Windows NT/5.0, UPnP/1.1, Portable SDK for UPnP devices/1.6", "1.1", true},
		{"Linux/4.4 upnp/2.0 player/3", "2.0", true},
		{"Linux/2.6 UPnP/one Product/1", "", false},
		{"Linux/2.6 Product/1", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			v, ok := UPnPVersion(tt.header)
			if ok != tt.ok {
				t.Fatalf("UPnPVersion(%q) ok = %v, want %v", tt.header, ok, tt.ok)
			}
			if ok && v.String() != tt.want {
				t.Errorf("UPnPVersion(%q) = %s, want %s", tt.header, v, tt.want)
			}
		})
	}
}

func TestCurrent(t *testing.T) {
	v, err := Parse(Current)
	if err != nil {
		t.Fatalf("Parse(Current) returned error: %v", err)
	}
	if v.Major != 1 || v.Minor != 0 {
		t.Errorf("Current version = %s, want 1.0", v)
	}
}
