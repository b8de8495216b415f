package backend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Property names understood by Property, SortItems and the search criteria
// matcher.
const (
	PropID          = "@id"
	PropParentID    = "@parentID"
	PropTitle       = "dc:title"
	PropCreator     = "dc:creator"
	PropDate        = "dc:date"
	PropDescription = "dc:description"
	PropClass       = "upnp:class"
	PropArtist      = "upnp:artist"
	PropAlbum       = "upnp:album"
	PropGenre       = "upnp:genre"
	PropTrackNumber = "upnp:originalTrackNumber"
	PropAlbumArtURI = "upnp:albumArtURI"
	PropResource    = "res"
	PropProtocol    = "res@protocolInfo"
	PropSize        = "res@size"
	PropDuration    = "res@duration"
	PropResolution  = "res@resolution"
)

// SortProperties lists the properties SortItems accepts.
var SortProperties = []string{PropTitle, PropCreator, PropDate, PropClass, PropArtist, PropAlbum, PropGenre, PropTrackNumber}

// numericProps compare as integers.
var numericProps = map[string]bool{PropTrackNumber: true, PropSize: true}

// Property returns the string value of a DIDL-Lite property. ok is false for
// properties the item does not carry or that are unknown.
func Property(item *Item, prop string) (value string, ok bool) {
	switch prop {
	case PropID:
		return item.ID, true
	case PropParentID:
		return item.ParentID, true
	case PropTitle:
		return item.Title, true
	case PropClass:
		return item.Class, true
	case PropCreator:
		value = item.Creator
	case PropDate:
		value = item.Date
	case PropDescription:
		value = item.Description
	case PropArtist:
		value = item.Artist
	case PropAlbum:
		value = item.Album
	case PropGenre:
		value = item.Genre
	case PropAlbumArtURI:
		value = item.AlbumArtURI
	case PropTrackNumber:
		if item.TrackNumber > 0 {
			value = strconv.Itoa(item.TrackNumber)
		}
	case PropResource:
		if len(item.Resources) > 0 {
			value = item.Resources[0].URL
		}
	case PropProtocol:
		if len(item.Resources) > 0 {
			value = item.Resources[0].ProtocolInfo
		}
	case PropSize:
		if len(item.Resources) > 0 && item.Resources[0].Size > 0 {
			value = strconv.FormatInt(item.Resources[0].Size, 10)
		}
	case PropDuration:
		if len(item.Resources) > 0 && item.Resources[0].Duration > 0 {
			value = FormatDuration(item.Resources[0].Duration)
		}
	case PropResolution:
		if len(item.Resources) > 0 {
			value = item.Resources[0].Resolution
		}
	}
	return value, value != ""
}

// ParseSortCriteria parses a CSV list of signed properties such as
// "+upnp:album,-dc:date". An empty string yields no keys.
func ParseSortCriteria(s string) ([]SortKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var keys []SortKey
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if len(field) < 2 {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedSort, field)
		}
		var key SortKey
		switch field[0] {
		case '+':
		case '-':
			key.Descending = true
		default:
			return nil, fmt.Errorf("%w: %q has no direction", ErrUnsupportedSort, field)
		}
		key.Property = field[1:]
		keys = append(keys, key)
	}
	return keys, nil
}

// SortItems orders items in place by keys. Ties keep their relative order.
// A key naming a property outside SortProperties returns ErrUnsupportedSort.
func SortItems(items []*Item, keys []SortKey) error {
	for _, k := range keys {
		if !supportedSort(k.Property) {
			return fmt.Errorf("%w: %s", ErrUnsupportedSort, k.Property)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			c := compareProp(items[i], items[j], k.Property)
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

func supportedSort(prop string) bool {
	for _, p := range SortProperties {
		if p == prop {
			return true
		}
	}
	return false
}

func compareProp(a, b *Item, prop string) int {
	av, _ := Property(a, prop)
	bv, _ := Property(b, prop)
	if numericProps[prop] {
		an, _ := strconv.ParseInt(av, 10, 64)
		bn, _ := strconv.ParseInt(bv, 10, 64)
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(av), strings.ToLower(bv))
}

// FormatDuration renders d as the DIDL-Lite "H:MM:SS.FFF" form.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	d -= sec * time.Second
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, sec, d/time.Millisecond)
}

// ParseDuration parses "H+:MM:SS[.F+]" and "H+:MM:SS[.F0/F1]" durations.
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	secPart, frac, _ := strings.Cut(parts[2], ".")
	sec, err := strconv.Atoi(secPart)
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
	if frac == "" {
		return d, nil
	}
	if num, den, ok := strings.Cut(frac, "/"); ok {
		n, err1 := strconv.Atoi(num)
		q, err2 := strconv.Atoi(den)
		if err1 != nil || err2 != nil || q == 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return d + time.Duration(n)*time.Second/time.Duration(q), nil
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	ns, err := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
	if err != nil || ns < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d + time.Duration(ns), nil
}
