package ssdp

import (
	"strings"

	"github.com/upnp-media/upnp-go/pkg/model"
)

// target is one advertised (NT, USN) pair.
type target struct {
	nt  string
	usn string
	udn string
}

// targets lists every advertisement of a root device tree: the root marker,
// then per device its UDN, its device type and each distinct service type.
func targets(root *model.Device) []target {
	out := []target{{
		nt:  TargetRootDevice,
		usn: root.UDN() + "::" + TargetRootDevice,
		udn: root.UDN(),
	}}
	_ = root.Walk(func(d *model.Device) error {
		udn := d.UDN()
		out = append(out,
			target{nt: udn, usn: udn, udn: udn},
			target{nt: d.Type(), usn: udn + "::" + d.Type(), udn: udn},
		)
		seen := make(map[string]bool)
		for _, svc := range d.Services() {
			if seen[svc.Type()] {
				continue
			}
			seen[svc.Type()] = true
			out = append(out, target{nt: svc.Type(), usn: udn + "::" + svc.Type(), udn: udn})
		}
		return nil
	})
	return out
}

// match returns the ST to answer with if t satisfies the search target st.
// Type searches match advertised versions greater than or equal to the
// requested one and are answered with the requested ST.
func (t target) match(st string) (string, bool) {
	switch {
	case st == TargetAll:
		return t.nt, true
	case st == t.nt:
		return st, true
	case strings.HasPrefix(st, "urn:") && strings.HasPrefix(t.nt, "urn:"):
		if model.TypeMatches(st, t.nt) {
			return st, true
		}
	}
	return "", false
}
