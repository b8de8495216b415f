package description

import (
	"encoding/xml"
	"strconv"

	"github.com/upnp-media/upnp-go/pkg/model"
)

// SCPD is a service description document.
type SCPD struct {
	XMLName     xml.Name        `xml:"urn:schemas-upnp-org:service-1-0 scpd"`
	SpecVersion SpecVersion     `xml:"specVersion"`
	ActionList  *ActionList     `xml:"actionList,omitempty"`
	Variables   []StateVariable `xml:"serviceStateTable>stateVariable"`
}

// ActionList holds at least one action. A service without actions has
// no actionList element.
type ActionList struct {
	Actions []Action `xml:"action"`
}

// Action describes one action.
type Action struct {
	Name         string        `xml:"name"`
	ArgumentList *ArgumentList `xml:"argumentList,omitempty"`
}

// ArgumentList holds at least one argument.
type ArgumentList struct {
	Arguments []Argument `xml:"argument"`
}

// Argument describes one action argument.
type Argument struct {
	Name                 string `xml:"name"`
	Direction            string `xml:"direction"`
	RelatedStateVariable string `xml:"relatedStateVariable"`
}

// StateVariable describes one state variable. At most one of
// AllowedValueList and AllowedRange is set.
type StateVariable struct {
	SendEvents       string            `xml:"sendEvents,attr"`
	Name             string            `xml:"name"`
	DataType         string            `xml:"dataType"`
	AllowedValueList *AllowedValueList `xml:"allowedValueList,omitempty"`
	AllowedRange     *AllowedRange     `xml:"allowedValueRange,omitempty"`
}

// AllowedValueList enumerates the permitted values of a string variable.
type AllowedValueList struct {
	Values []string `xml:"allowedValue"`
}

// AllowedRange describes a numeric range constraint.
type AllowedRange struct {
	Minimum string `xml:"minimum"`
	Maximum string `xml:"maximum"`
	Step    string `xml:"step,omitempty"`
}

// NewSCPD builds the description document of a service. Actions and
// variables keep their declared order.
func NewSCPD(svc *model.Service) *SCPD {
	doc := &SCPD{SpecVersion: specVersion}
	var actions []Action
	for _, a := range svc.Actions() {
		var args []Argument
		for _, arg := range a.Inputs() {
			args = append(args, Argument{
				Name:                 arg.Name,
				Direction:            model.DirectionIn.String(),
				RelatedStateVariable: arg.RelatedStateVariable,
			})
		}
		for _, arg := range a.Outputs() {
			args = append(args, Argument{
				Name:                 arg.Name,
				Direction:            model.DirectionOut.String(),
				RelatedStateVariable: arg.RelatedStateVariable,
			})
		}
		act := Action{Name: a.Name()}
		if len(args) > 0 {
			act.ArgumentList = &ArgumentList{Arguments: args}
		}
		actions = append(actions, act)
	}
	if len(actions) > 0 {
		doc.ActionList = &ActionList{Actions: actions}
	}
	for _, sv := range svc.StateVariables() {
		meta := sv.Metadata()
		v := StateVariable{
			SendEvents: "no",
			Name:       meta.Name,
			DataType:   meta.Type.String(),
		}
		if meta.Evented {
			v.SendEvents = "yes"
		}
		switch r := meta.Range; {
		case len(meta.AllowedValues) > 0:
			v.AllowedValueList = &AllowedValueList{Values: append([]string(nil), meta.AllowedValues...)}
		case r != nil:
			v.AllowedRange = &AllowedRange{
				Minimum: formatNumber(r.Minimum),
				Maximum: formatNumber(r.Maximum),
			}
			if r.Step != 0 {
				v.AllowedRange.Step = formatNumber(r.Step)
			}
		}
		doc.Variables = append(doc.Variables, v)
	}
	return doc
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
