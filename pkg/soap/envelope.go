package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// XML namespaces of UPnP control messages.
const (
	EnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
	EncodingStyle     = "http://schemas.xmlsoap.org/soap/encoding/"
	ControlNamespace  = "urn:schemas-upnp-org:control-1-0"
)

// Envelope errors.
var (
	ErrMalformedEnvelope = errors.New("malformed SOAP envelope")
	ErrMalformedAction   = errors.New("malformed SOAPACTION header")
)

// Arg is one named argument in wire form.
type Arg struct {
	Name  string
	Value string
}

// Request is a decoded action request.
type Request struct {
	// ServiceType is the namespace of the action element.
	ServiceType string

	// Action is the action name.
	Action string

	// Args are the arguments in document order.
	Args []Arg
}

// Arg returns the value of the named argument.
func (r *Request) Arg(name string) (string, bool) {
	for _, a := range r.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// ParseSOAPAction splits a SOAPACTION header value of the form
// "urn:schemas-upnp-org:service:ContentDirectory:1#Browse".
func ParseSOAPAction(h string) (serviceType, action string, err error) {
	h = strings.Trim(strings.TrimSpace(h), `"`)
	i := strings.LastIndexByte(h, '#')
	if i <= 0 || i == len(h)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedAction, h)
	}
	return h[:i], h[i+1:], nil
}

// node is a parsed XML element.
type node struct {
	name     xml.Name
	text     strings.Builder
	children []*node
}

func (n *node) child(local string) *node {
	for _, c := range n.children {
		if c.name.Local == local {
			return c
		}
	}
	return nil
}

func (n *node) firstChild() *node {
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

// parseTree reads an XML document into a tree of elements.
func parseTree(r io.Reader) (*node, error) {
	dec := xml.NewDecoder(r)
	var (
		root  *node
		stack []*node
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformedEnvelope)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedEnvelope)
	}
	return root, nil
}

// body returns the first element inside s:Envelope/s:Body.
func body(r io.Reader) (*node, error) {
	root, err := parseTree(r)
	if err != nil {
		return nil, err
	}
	if root.name.Local != "Envelope" || root.name.Space != EnvelopeNamespace {
		return nil, fmt.Errorf("%w: root element %s", ErrMalformedEnvelope, root.name.Local)
	}
	b := root.child("Body")
	if b == nil {
		return nil, fmt.Errorf("%w: no Body", ErrMalformedEnvelope)
	}
	first := b.firstChild()
	if first == nil {
		return nil, fmt.Errorf("%w: empty Body", ErrMalformedEnvelope)
	}
	return first, nil
}

// DecodeRequest parses an action request envelope.
func DecodeRequest(r io.Reader) (*Request, error) {
	action, err := body(r)
	if err != nil {
		return nil, err
	}
	req := &Request{ServiceType: action.name.Space, Action: action.name.Local}
	for _, c := range action.children {
		req.Args = append(req.Args, Arg{Name: c.name.Local, Value: c.text.String()})
	}
	return req, nil
}

// DecodeResponse parses an action response envelope. A fault is returned as
// a *Error.
func DecodeResponse(r io.Reader) ([]Arg, error) {
	resp, err := body(r)
	if err != nil {
		return nil, err
	}
	if resp.name.Local == "Fault" {
		return nil, decodeFault(resp)
	}
	var args []Arg
	for _, c := range resp.children {
		args = append(args, Arg{Name: c.name.Local, Value: c.text.String()})
	}
	return args, nil
}

func decodeFault(f *node) error {
	detail := f.child("detail")
	if detail == nil {
		return fmt.Errorf("%w: fault without detail", ErrMalformedEnvelope)
	}
	upnp := detail.child("UPnPError")
	if upnp == nil {
		return fmt.Errorf("%w: fault without UPnPError", ErrMalformedEnvelope)
	}
	codeNode := upnp.child("errorCode")
	if codeNode == nil {
		return fmt.Errorf("%w: fault without errorCode", ErrMalformedEnvelope)
	}
	code, err := strconv.Atoi(strings.TrimSpace(codeNode.text.String()))
	if err != nil {
		return fmt.Errorf("%w: errorCode %q", ErrMalformedEnvelope, codeNode.text.String())
	}
	desc := ""
	if d := upnp.child("errorDescription"); d != nil {
		desc = d.text.String()
	}
	return &Error{Code: Code(code), Description: desc}
}

// encoder writes an s:Envelope with a single body element.
type encoder struct {
	buf bytes.Buffer
	enc *xml.Encoder
	err error
}

func newEncoder() *encoder {
	e := &encoder{}
	e.buf.WriteString(xml.Header)
	e.enc = xml.NewEncoder(&e.buf)
	e.start(xml.StartElement{
		Name: xml.Name{Local: "s:Envelope"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:s"}, Value: EnvelopeNamespace},
			{Name: xml.Name{Local: "s:encodingStyle"}, Value: EncodingStyle},
		},
	})
	e.start(xml.StartElement{Name: xml.Name{Local: "s:Body"}})
	return e
}

func (e *encoder) start(se xml.StartElement) {
	if e.err == nil {
		e.err = e.enc.EncodeToken(se)
	}
}

func (e *encoder) end(local string) {
	if e.err == nil {
		e.err = e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
	}
}

func (e *encoder) text(local, value string) {
	if e.err == nil {
		e.err = e.enc.EncodeElement(value, xml.StartElement{Name: xml.Name{Local: local}})
	}
}

func (e *encoder) args(args []Arg) {
	for _, a := range args {
		e.text(a.Name, a.Value)
	}
}

func (e *encoder) finish() ([]byte, error) {
	e.end("s:Body")
	e.end("s:Envelope")
	if e.err == nil {
		e.err = e.enc.Flush()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

func (e *encoder) action(local, serviceType string, args []Arg) {
	e.start(xml.StartElement{
		Name: xml.Name{Local: "u:" + local},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:u"}, Value: serviceType}},
	})
	e.args(args)
	e.end("u:" + local)
}

// EncodeRequest renders an action request envelope.
func EncodeRequest(serviceType, action string, args []Arg) ([]byte, error) {
	e := newEncoder()
	e.action(action, serviceType, args)
	return e.finish()
}

// EncodeResponse renders an action response envelope with the output
// arguments in the given order.
func EncodeResponse(serviceType, action string, args []Arg) ([]byte, error) {
	e := newEncoder()
	e.action(action+"Response", serviceType, args)
	return e.finish()
}

// EncodeFault renders a SOAP fault carrying a UPnPError.
func EncodeFault(fault *Error) ([]byte, error) {
	e := newEncoder()
	e.start(xml.StartElement{Name: xml.Name{Local: "s:Fault"}})
	e.text("faultcode", "s:Client")
	e.text("faultstring", "UPnPError")
	e.start(xml.StartElement{Name: xml.Name{Local: "detail"}})
	e.start(xml.StartElement{
		Name: xml.Name{Local: "UPnPError"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: ControlNamespace}},
	})
	e.text("errorCode", strconv.Itoa(int(fault.Code)))
	e.text("errorDescription", fault.Description)
	e.end("UPnPError")
	e.end("detail")
	e.end("s:Fault")
	return e.finish()
}
