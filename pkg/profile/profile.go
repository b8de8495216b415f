// Package profile checks services against the published UPnP service
// templates.
//
// A profile lists the mandatory and optional actions and state variables
// of one service type. The profiles are embedded; Validate compares a
// model.Service with the profile for its type.
package profile

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/upnp-media/upnp-go/pkg/model"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// ErrUnknownServiceType is returned for service types without a profile.
var ErrUnknownServiceType = errors.New("no profile for service type")

// ErrNonConformant is returned by CheckDevice when a service misses a
// mandatory element.
var ErrNonConformant = errors.New("service does not satisfy its profile")

// Profile describes what a service type requires.
type Profile struct {
	ServiceType string       `yaml:"service_type"`
	Description string       `yaml:"description"`
	Actions     ActionSpec   `yaml:"actions"`
	Variables   VariableSpec `yaml:"variables"`
}

// ActionSpec lists the mandatory and optional actions of a service.
type ActionSpec struct {
	Mandatory []ActionDef `yaml:"mandatory"`
	Optional  []ActionDef `yaml:"optional"`
}

// ActionDef is an action with its argument names in declared order.
type ActionDef struct {
	Name string   `yaml:"name"`
	In   []string `yaml:"in"`
	Out  []string `yaml:"out"`
}

// VariableSpec lists the mandatory and optional state variables.
type VariableSpec struct {
	Mandatory []VariableDef `yaml:"mandatory"`
	Optional  []VariableDef `yaml:"optional"`
}

// VariableDef is a state variable and whether it must be evented.
type VariableDef struct {
	Name    string `yaml:"name"`
	Evented bool   `yaml:"evented"`
}

var (
	loadOnce sync.Once
	profiles map[string]*Profile
	loadErr  error
)

func loadAll() (map[string]*Profile, error) {
	loadOnce.Do(func() {
		entries, err := profileFS.ReadDir("profiles")
		if err != nil {
			loadErr = fmt.Errorf("reading profiles: %w", err)
			return
		}
		profiles = make(map[string]*Profile, len(entries))
		for _, e := range entries {
			data, err := profileFS.ReadFile(path.Join("profiles", e.Name()))
			if err != nil {
				loadErr = err
				return
			}
			var p Profile
			if err := yaml.Unmarshal(data, &p); err != nil {
				loadErr = fmt.Errorf("parsing profile %s: %w", e.Name(), err)
				return
			}
			profiles[p.ServiceType] = &p
		}
	})
	return profiles, loadErr
}

// Load returns the profile for a service type URN.
func Load(serviceType string) (*Profile, error) {
	all, err := loadAll()
	if err != nil {
		return nil, err
	}
	p, ok := all[serviceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServiceType, serviceType)
	}
	return p, nil
}

// Available returns the service types with a profile, sorted.
func Available() ([]string, error) {
	all, err := loadAll()
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(all))
	for t := range all {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

// MandatoryActions returns the names of the mandatory actions.
func (p *Profile) MandatoryActions() []string {
	out := make([]string, len(p.Actions.Mandatory))
	for i, a := range p.Actions.Mandatory {
		out[i] = a.Name
	}
	return out
}

// Result holds the outcome of validating a service against a profile.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate checks svc against p. Missing mandatory elements and argument
// mismatches are errors; elements the profile does not know are warnings.
func Validate(p *Profile, svc *model.Service) Result {
	var result Result

	known := make(map[string]bool)
	check := func(def ActionDef, mandatory bool) {
		known[def.Name] = true
		a, err := svc.Action(def.Name)
		if err != nil {
			if mandatory {
				result.Errors = append(result.Errors, fmt.Sprintf("mandatory action %s missing", def.Name))
			}
			return
		}
		if def.In != nil && !slices.Equal(argNames(a.Inputs()), def.In) {
			result.Errors = append(result.Errors, fmt.Sprintf("action %s inputs %v, want %v", def.Name, argNames(a.Inputs()), def.In))
		}
		if def.Out != nil && !slices.Equal(argNames(a.Outputs()), def.Out) {
			result.Errors = append(result.Errors, fmt.Sprintf("action %s outputs %v, want %v", def.Name, argNames(a.Outputs()), def.Out))
		}
	}
	for _, def := range p.Actions.Mandatory {
		check(def, true)
	}
	for _, def := range p.Actions.Optional {
		check(def, false)
	}
	for _, a := range svc.Actions() {
		if !known[a.Name()] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("vendor action %s", a.Name()))
		}
	}

	knownVars := make(map[string]bool)
	checkVar := func(def VariableDef, mandatory bool) {
		knownVars[def.Name] = true
		sv, err := svc.StateVariable(def.Name)
		if err != nil {
			if mandatory {
				result.Errors = append(result.Errors, fmt.Sprintf("mandatory state variable %s missing", def.Name))
			}
			return
		}
		if sv.Evented() != def.Evented {
			result.Errors = append(result.Errors, fmt.Sprintf("state variable %s evented=%t, want %t", def.Name, sv.Evented(), def.Evented))
		}
	}
	for _, def := range p.Variables.Mandatory {
		checkVar(def, true)
	}
	for _, def := range p.Variables.Optional {
		checkVar(def, false)
	}
	for _, sv := range svc.StateVariables() {
		if !knownVars[sv.Name()] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("vendor state variable %s", sv.Name()))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func argNames(args []model.Argument) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.Name
	}
	return out
}

// CheckDevice validates every service of dev and its embedded devices
// whose type has a profile. Services of other types are skipped.
func CheckDevice(dev *model.Device) error {
	var problems []string
	for _, svc := range dev.AllServices() {
		p, err := Load(svc.Type())
		if errors.Is(err, ErrUnknownServiceType) {
			continue
		}
		if err != nil {
			return err
		}
		res := Validate(p, svc)
		for _, e := range res.Errors {
			problems = append(problems, svc.ID()+": "+e)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrNonConformant, strings.Join(problems, "; "))
	}
	return nil
}
