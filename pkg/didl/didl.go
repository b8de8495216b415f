package didl

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/upnp-media/upnp-go/pkg/backend"
)

// XML namespaces used in DIDL-Lite documents.
const (
	Namespace     = "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"
	NamespaceDC   = "http://purl.org/dc/elements/1.1/"
	NamespaceUPnP = "urn:schemas-upnp-org:metadata-1-0/upnp/"
	NamespaceDLNA = "urn:schemas-dlna-org:metadata-1-0/"
)

// ErrMalformed is returned for documents that are not DIDL-Lite.
var ErrMalformed = errors.New("malformed DIDL-Lite document")

// encoder writes prefixed element names directly so the output carries the
// conventional dc:, upnp: and dlna: prefixes control points expect.
type encoder struct {
	enc *xml.Encoder
	err error
}

func (e *encoder) start(name string, attrs ...xml.Attr) {
	if e.err == nil {
		e.err = e.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
	}
}

func (e *encoder) end(name string) {
	if e.err == nil {
		e.err = e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})
	}
}

func (e *encoder) text(name, value string, attrs ...xml.Attr) {
	if value == "" {
		return
	}
	e.start(name, attrs...)
	if e.err == nil {
		e.err = e.enc.EncodeToken(xml.CharData(value))
	}
	e.end(name)
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func boolAttr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// Encode renders objects as a DIDL-Lite document, emitting only the
// optional properties f selects.
func Encode(objects []*backend.Item, f Filter) (string, error) {
	var buf bytes.Buffer
	e := &encoder{enc: xml.NewEncoder(&buf)}

	e.start("DIDL-Lite",
		attr("xmlns", Namespace),
		attr("xmlns:dc", NamespaceDC),
		attr("xmlns:upnp", NamespaceUPnP),
		attr("xmlns:dlna", NamespaceDLNA),
	)
	for _, obj := range objects {
		e.object(obj, f)
	}
	e.end("DIDL-Lite")
	if e.err == nil {
		e.err = e.enc.Flush()
	}
	if e.err != nil {
		return "", fmt.Errorf("encoding DIDL-Lite: %w", e.err)
	}
	return buf.String(), nil
}

func (e *encoder) object(obj *backend.Item, f Filter) {
	elem := "item"
	if obj.Container {
		elem = "container"
	}
	attrs := []xml.Attr{
		attr("id", obj.ID),
		attr("parentID", obj.ParentID),
		attr("restricted", boolAttr(obj.Restricted)),
	}
	if obj.Container {
		if f.Includes("@childCount") {
			attrs = append(attrs, attr("childCount", strconv.Itoa(obj.ChildCount)))
		}
		if f.Includes("@searchable") {
			attrs = append(attrs, attr("searchable", boolAttr(obj.Searchable)))
		}
	}
	e.start(elem, attrs...)

	// dc:title and upnp:class are always present.
	e.start("dc:title")
	if e.err == nil {
		e.err = e.enc.EncodeToken(xml.CharData(obj.Title))
	}
	e.end("dc:title")

	if f.Includes(backend.PropCreator) {
		e.text("dc:creator", obj.Creator)
	}
	if f.Includes(backend.PropArtist) {
		e.text("upnp:artist", obj.Artist)
	}
	if f.Includes(backend.PropAlbum) {
		e.text("upnp:album", obj.Album)
	}
	if f.Includes(backend.PropGenre) {
		e.text("upnp:genre", obj.Genre)
	}
	if f.Includes(backend.PropDate) {
		e.text("dc:date", obj.Date)
	}
	if f.Includes(backend.PropDescription) {
		e.text("dc:description", obj.Description)
	}
	if f.Includes(backend.PropTrackNumber) && obj.TrackNumber > 0 {
		e.text("upnp:originalTrackNumber", strconv.Itoa(obj.TrackNumber))
	}
	if f.Includes(backend.PropAlbumArtURI) {
		e.text("upnp:albumArtURI", obj.AlbumArtURI, attr("dlna:profileID", "JPEG_TN"))
	}

	e.text("upnp:class", obj.Class)

	if f.Includes(backend.PropResource) {
		for _, r := range obj.Resources {
			e.resource(r, f)
		}
	}
	e.end(elem)
}

func (e *encoder) resource(r backend.Resource, f Filter) {
	attrs := []xml.Attr{attr("protocolInfo", r.ProtocolInfo)}
	if r.Size > 0 && f.Includes(backend.PropSize) {
		attrs = append(attrs, attr("size", strconv.FormatInt(r.Size, 10)))
	}
	if r.Duration > 0 && f.Includes(backend.PropDuration) {
		attrs = append(attrs, attr("duration", backend.FormatDuration(r.Duration)))
	}
	if r.Resolution != "" && f.Includes(backend.PropResolution) {
		attrs = append(attrs, attr("resolution", r.Resolution))
	}
	if r.Bitrate > 0 && f.Includes("res@bitrate") {
		attrs = append(attrs, attr("bitrate", strconv.Itoa(r.Bitrate)))
	}
	e.start("res", attrs...)
	if e.err == nil {
		e.err = e.enc.EncodeToken(xml.CharData(r.URL))
	}
	e.end("res")
}

// object is the decoded form of an item or container element.
type object struct {
	ID          string `xml:"id,attr"`
	ParentID    string `xml:"parentID,attr"`
	Restricted  string `xml:"restricted,attr"`
	Searchable  string `xml:"searchable,attr"`
	ChildCount  int    `xml:"childCount,attr"`
	Title       string `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator     string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Date        string `xml:"http://purl.org/dc/elements/1.1/ date"`
	Description string `xml:"http://purl.org/dc/elements/1.1/ description"`
	Class       string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ class"`
	Artist      string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ artist"`
	Album       string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ album"`
	Genre       string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ genre"`
	TrackNumber int    `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ originalTrackNumber"`
	AlbumArtURI string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ albumArtURI"`
	Resources   []res  `xml:"res"`
}

type res struct {
	ProtocolInfo string `xml:"protocolInfo,attr"`
	Size         int64  `xml:"size,attr"`
	Duration     string `xml:"duration,attr"`
	Resolution   string `xml:"resolution,attr"`
	Bitrate      int    `xml:"bitrate,attr"`
	URL          string `xml:",chardata"`
}

func parseBool(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}

// Decode parses a DIDL-Lite document. Objects are returned in document
// order.
func Decode(r io.Reader) ([]*backend.Item, error) {
	dec := xml.NewDecoder(r)
	var (
		items   []*backend.Item
		sawRoot bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "DIDL-Lite":
			sawRoot = true
		case "item", "container":
			if !sawRoot {
				return nil, fmt.Errorf("%w: %s outside DIDL-Lite", ErrMalformed, start.Name.Local)
			}
			var o object
			if err := dec.DecodeElement(&o, &start); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			item, err := o.item(start.Name.Local == "container")
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		default:
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
	}
	if !sawRoot {
		return nil, fmt.Errorf("%w: no DIDL-Lite element", ErrMalformed)
	}
	return items, nil
}

// DecodeString is Decode for an in-memory document.
func DecodeString(s string) ([]*backend.Item, error) {
	return Decode(strings.NewReader(s))
}

func (o *object) item(container bool) (*backend.Item, error) {
	it := &backend.Item{
		ID:          o.ID,
		ParentID:    o.ParentID,
		Title:       o.Title,
		Class:       o.Class,
		Creator:     o.Creator,
		Artist:      o.Artist,
		Album:       o.Album,
		Genre:       o.Genre,
		Date:        o.Date,
		Description: o.Description,
		TrackNumber: o.TrackNumber,
		AlbumArtURI: o.AlbumArtURI,
		Container:   container,
		Restricted:  parseBool(o.Restricted),
	}
	if container {
		it.ChildCount = o.ChildCount
		it.Searchable = parseBool(o.Searchable)
	}
	for _, r := range o.Resources {
		rs := backend.Resource{
			URL:          strings.TrimSpace(r.URL),
			ProtocolInfo: r.ProtocolInfo,
			Size:         r.Size,
			Resolution:   r.Resolution,
			Bitrate:      r.Bitrate,
		}
		if r.Duration != "" {
			d, err := backend.ParseDuration(r.Duration)
			if err != nil {
				return nil, fmt.Errorf("%w: object %s: %v", ErrMalformed, o.ID, err)
			}
			rs.Duration = d
		}
		it.Resources = append(it.Resources, rs)
	}
	return it, nil
}
