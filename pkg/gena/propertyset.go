package gena

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// EventNamespace is the XML namespace of GENA property sets.
const EventNamespace = "urn:schemas-upnp-org:event-1-0"

// ErrMalformedPropertySet is returned for undecodable NOTIFY bodies.
var ErrMalformedPropertySet = errors.New("malformed property set")

// EncodePropertySet renders variables as an e:propertyset document, one
// e:property element per variable.
func EncodePropertySet(vars []Variable) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	root := xml.StartElement{
		Name: xml.Name{Local: "e:propertyset"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:e"}, Value: EventNamespace}},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, v := range vars {
		prop := xml.StartElement{Name: xml.Name{Local: "e:property"}}
		if err := enc.EncodeToken(prop); err != nil {
			return nil, err
		}
		if err := enc.EncodeElement(v.Value, xml.StartElement{Name: xml.Name{Local: v.Name}}); err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		if err := enc.EncodeToken(prop.End()); err != nil {
			return nil, err
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePropertySet parses an e:propertyset document into its variables in
// document order.
func DecodePropertySet(r io.Reader) ([]Variable, error) {
	dec := xml.NewDecoder(r)

	var (
		vars   []Variable
		depth  int
		inProp bool
		cur    *Variable
		seen   bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPropertySet, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				if t.Name.Local != "propertyset" {
					return nil, fmt.Errorf("%w: root element %s", ErrMalformedPropertySet, t.Name.Local)
				}
				seen = true
			case depth == 2 && t.Name.Local == "property":
				inProp = true
			case depth == 3 && inProp:
				vars = append(vars, Variable{Name: t.Name.Local})
				cur = &vars[len(vars)-1]
			}
		case xml.CharData:
			if cur != nil && depth == 3 {
				cur.Value += string(t)
			}
		case xml.EndElement:
			if depth == 3 {
				cur = nil
			}
			if depth == 2 {
				inProp = false
			}
			depth--
		}
	}
	if !seen {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedPropertySet)
	}
	return vars, nil
}
