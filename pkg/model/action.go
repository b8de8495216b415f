package model

import (
	"context"
	"errors"
	"fmt"
)

// Action errors.
var (
	ErrActionNotFound       = errors.New("action not found")
	ErrActionNotImplemented = errors.New("action has no handler")
	ErrMissingArgument      = errors.New("missing argument")
)

// Direction is an argument direction.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

// String returns the SCPD direction token.
func (d Direction) String() string {
	if d == DirectionOut {
		return "out"
	}
	return "in"
}

// Argument describes an action argument. Its data type and allowed values
// come from the related state variable.
type Argument struct {
	// Name is the argument name.
	Name string

	// RelatedStateVariable names the service state variable whose type and
	// constraints apply to this argument.
	RelatedStateVariable string
}

// ActionHandler implements an action. Inputs are decoded and validated
// values keyed by argument name. The returned map must hold a value for every
// output argument.
type ActionHandler func(ctx context.Context, in map[string]any) (map[string]any, error)

// ActionMetadata describes an action's signature.
type ActionMetadata struct {
	// Name is the action name.
	Name string

	// In lists the input arguments in declared order.
	In []Argument

	// Out lists the output arguments in declared order.
	Out []Argument
}

// Action represents an action instance with its handler.
type Action struct {
	metadata *ActionMetadata
	handler  ActionHandler
}

// NewAction creates a new action with the given metadata and handler.
func NewAction(meta *ActionMetadata, handler ActionHandler) *Action {
	return &Action{
		metadata: meta,
		handler:  handler,
	}
}

// Name returns the action name.
func (a *Action) Name() string {
	return a.metadata.Name
}

// Metadata returns the action metadata.
func (a *Action) Metadata() *ActionMetadata {
	return a.metadata
}

// Inputs returns the input arguments in declared order.
func (a *Action) Inputs() []Argument {
	return a.metadata.In
}

// Outputs returns the output arguments in declared order.
func (a *Action) Outputs() []Argument {
	return a.metadata.Out
}

// Invoke runs the handler and checks that every output argument is present.
func (a *Action) Invoke(ctx context.Context, in map[string]any) (map[string]any, error) {
	if a.handler == nil {
		return nil, ErrActionNotImplemented
	}

	out, err := a.handler(ctx, in)
	if err != nil {
		return nil, err
	}
	for _, arg := range a.metadata.Out {
		if _, ok := out[arg.Name]; !ok {
			return nil, fmt.Errorf("%s: %w %s in response", a.metadata.Name, ErrMissingArgument, arg.Name)
		}
	}
	return out, nil
}

// SetHandler sets or replaces the action handler.
func (a *Action) SetHandler(handler ActionHandler) {
	a.handler = handler
}
