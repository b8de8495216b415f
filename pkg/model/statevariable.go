package model

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State variable errors.
var (
	ErrValueNotAllowed = errors.New("value not in allowed value list")
	ErrValueOutOfRange = errors.New("value out of range")
)

// AllowedRange constrains a numeric state variable.
type AllowedRange struct {
	Minimum float64
	Maximum float64

	// Step is informational and published in the SCPD. Zero means unset.
	Step float64
}

// StateVariableMetadata describes a state variable's properties.
type StateVariableMetadata struct {
	// Name is the variable name, unique within its service.
	Name string

	// Type is the UPnP data type.
	Type DataType

	// Evented marks variables whose changes are sent to GENA subscribers.
	Evented bool

	// AllowedValues restricts string variables to an enumeration.
	AllowedValues []string

	// Range restricts numeric variables.
	Range *AllowedRange

	// Default is the initial value. Nil leaves the type's zero value.
	Default any
}

// StateVariable holds the current value of a service state variable.
// Values are changed through the owning Service.
type StateVariable struct {
	mu       sync.RWMutex
	metadata *StateVariableMetadata
	value    any
}

// NewStateVariable creates a state variable from its metadata. The default
// value is normalized to the variable's type; an invalid default panics since
// it is a programming error in the service definition.
func NewStateVariable(meta *StateVariableMetadata) *StateVariable {
	sv := &StateVariable{metadata: meta}
	v := meta.Default
	if v == nil {
		v = zeroValue(meta.Type)
	}
	norm, err := meta.Type.normalize(v)
	if err != nil {
		panic(fmt.Sprintf("state variable %s: bad default: %v", meta.Name, err))
	}
	sv.value = norm
	return sv
}

func zeroValue(d DataType) any {
	switch {
	case d.IsNumeric():
		if _, _, isInt := d.intBounds(); isInt {
			return int64(0)
		}
		return float64(0)
	case d == DataTypeBoolean:
		return false
	case d == DataTypeBinBase64 || d == DataTypeBinHex:
		return []byte{}
	case d == DataTypeChar:
		return " "
	case d >= DataTypeDate && d <= DataTypeTimeTZ:
		return time.Unix(0, 0).UTC()
	}
	return ""
}

// Name returns the variable name.
func (sv *StateVariable) Name() string {
	return sv.metadata.Name
}

// Metadata returns the variable metadata.
func (sv *StateVariable) Metadata() *StateVariableMetadata {
	return sv.metadata
}

// Type returns the variable's data type.
func (sv *StateVariable) Type() DataType {
	return sv.metadata.Type
}

// Evented reports whether changes are published to subscribers.
func (sv *StateVariable) Evented() bool {
	return sv.metadata.Evented
}

// Value returns the current value.
func (sv *StateVariable) Value() any {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return sv.value
}

// Encoded returns the current value in wire form.
func (sv *StateVariable) Encoded() string {
	s, _ := sv.metadata.Type.Encode(sv.Value())
	return s
}

// Validate normalizes value to the variable's type and checks the allowed
// value list and range.
func (sv *StateVariable) Validate(value any) (any, error) {
	norm, err := sv.metadata.Type.normalize(value)
	if err != nil {
		return nil, err
	}
	if err := sv.checkConstraints(norm); err != nil {
		return nil, err
	}
	return norm, nil
}

// DecodeValue parses a wire string and validates it.
func (sv *StateVariable) DecodeValue(s string) (any, error) {
	v, err := sv.metadata.Type.Decode(s)
	if err != nil {
		return nil, err
	}
	if err := sv.checkConstraints(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (sv *StateVariable) checkConstraints(value any) error {
	if len(sv.metadata.AllowedValues) > 0 {
		s, _ := value.(string)
		allowed := false
		for _, a := range sv.metadata.AllowedValues {
			if a == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %q", ErrValueNotAllowed, s)
		}
	}

	if r := sv.metadata.Range; r != nil {
		v, ok := toFloat64(value)
		if !ok {
			return nil
		}
		if v < r.Minimum {
			return fmt.Errorf("%w: %v < %v", ErrValueOutOfRange, value, r.Minimum)
		}
		if v > r.Maximum {
			return fmt.Errorf("%w: %v > %v", ErrValueOutOfRange, value, r.Maximum)
		}
	}
	return nil
}

// set stores an already validated value and reports whether it changed.
func (sv *StateVariable) set(value any) bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if equalValues(sv.value, value) {
		return false
	}
	sv.value = value
	return true
}

func equalValues(a, b any) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok || bok {
		return aok && bok && string(ab) == string(bb)
	}
	return a == b
}
