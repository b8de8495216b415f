package model

import (
	"strconv"
	"strings"
)

// Standard type URNs used by a media server.
const (
	DeviceTypeMediaServer1     = "urn:schemas-upnp-org:device:MediaServer:1"
	ServiceTypeContentDir1     = "urn:schemas-upnp-org:service:ContentDirectory:1"
	ServiceTypeConnectionMgr1  = "urn:schemas-upnp-org:service:ConnectionManager:1"
	ServiceIDContentDirectory  = "urn:upnp-org:serviceId:ContentDirectory"
	ServiceIDConnectionManager = "urn:upnp-org:serviceId:ConnectionManager"
)

// SplitType splits a versioned type URN such as
// "urn:schemas-upnp-org:service:ContentDirectory:1" into its base and version.
// A URN without a numeric version suffix yields version 0.
func SplitType(urn string) (base string, version int) {
	i := strings.LastIndexByte(urn, ':')
	if i < 0 {
		return urn, 0
	}
	v, err := strconv.Atoi(urn[i+1:])
	if err != nil {
		return urn, 0
	}
	return urn[:i], v
}

// TypeMatches reports whether an advertised type satisfies a requested one.
// Versions are backwards compatible, so a request for version N is answered
// by any advertised version of at least N.
func TypeMatches(requested, advertised string) bool {
	if requested == advertised {
		return true
	}
	rb, rv := SplitType(requested)
	ab, av := SplitType(advertised)
	return rb == ab && rv > 0 && av >= rv
}
