package didl

import (
	"sort"
	"strings"
)

// Filter selects the optional properties included in Browse and Search
// results. Required properties (@id, @parentID, @restricted, dc:title,
// upnp:class) are always emitted.
type Filter struct {
	all   bool
	props map[string]bool
}

// FilterAll includes every property.
var FilterAll = Filter{all: true}

// ParseFilter parses a filter argument: "*" or a comma separated list such
// as "dc:creator,upnp:album,res@size". An empty filter selects only the
// required properties.
func ParseFilter(s string) Filter {
	f := Filter{props: make(map[string]bool)}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p == "*":
			f.all = true
		default:
			f.props[p] = true
			// An attribute implies its element.
			if elem, _, ok := strings.Cut(p, "@"); ok && elem != "" {
				f.props[elem] = true
			}
		}
	}
	return f
}

// Includes reports whether prop is selected. Container attributes may be
// given with or without the "container" element prefix.
func (f Filter) Includes(prop string) bool {
	if f.all {
		return true
	}
	if f.props[prop] {
		return true
	}
	if strings.HasPrefix(prop, "@") && f.props["container"+prop] {
		return true
	}
	return false
}

// String renders the filter in argument form.
func (f Filter) String() string {
	if f.all {
		return "*"
	}
	props := make([]string, 0, len(f.props))
	for p := range f.props {
		props = append(props, p)
	}
	sort.Strings(props)
	return strings.Join(props, ",")
}
