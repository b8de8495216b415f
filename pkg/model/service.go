package model

import (
	"errors"
	"fmt"
	"sync"
)

// Service errors.
var (
	ErrStateVariableNotFound  = errors.New("state variable not found")
	ErrDuplicateStateVariable = errors.New("duplicate state variable")
	ErrDuplicateAction        = errors.New("duplicate action")
	ErrUnknownRelatedVariable = errors.New("argument refers to unknown state variable")
)

// Change is a single state variable change.
type Change struct {
	Name  string
	Value any
}

// ServiceSubscriber is notified when evented state variables change.
type ServiceSubscriber interface {
	// OnStateChanged is called once per logical update with every evented
	// variable that changed. Calls for one service never overlap and arrive
	// in update order, so implementations must not block.
	OnStateChanged(svc *Service, changes []Change)
}

// Service represents a UPnP service with its actions and state variables.
type Service struct {
	// updateMu serializes mutations and the notifications they produce.
	updateMu sync.Mutex

	mu sync.RWMutex

	serviceType string
	serviceID   string

	actions     []*Action
	actionIndex map[string]*Action

	variables map[string]*StateVariable
	varOrder  []string

	subscribers []ServiceSubscriber
}

// NewService creates a new service of the given type and id.
func NewService(serviceType, serviceID string) *Service {
	return &Service{
		serviceType: serviceType,
		serviceID:   serviceID,
		actionIndex: make(map[string]*Action),
		variables:   make(map[string]*StateVariable),
	}
}

// Type returns the service type URN.
func (s *Service) Type() string {
	return s.serviceType
}

// ID returns the service id URN.
func (s *Service) ID() string {
	return s.serviceID
}

// AddStateVariable adds a state variable to the service.
func (s *Service) AddStateVariable(sv *StateVariable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.variables[sv.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStateVariable, sv.Name())
	}
	s.variables[sv.Name()] = sv
	s.varOrder = append(s.varOrder, sv.Name())
	return nil
}

// AddAction adds an action. Every argument must refer to a state variable
// that is already declared.
func (s *Service) AddAction(a *Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actionIndex[a.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, a.Name())
	}
	for _, args := range [][]Argument{a.Inputs(), a.Outputs()} {
		for _, arg := range args {
			if _, ok := s.variables[arg.RelatedStateVariable]; !ok {
				return fmt.Errorf("%s.%s: %w %q", a.Name(), arg.Name, ErrUnknownRelatedVariable, arg.RelatedStateVariable)
			}
		}
	}
	s.actions = append(s.actions, a)
	s.actionIndex[a.Name()] = a
	return nil
}

// Action returns an action by name.
func (s *Service) Action(name string) (*Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.actionIndex[name]
	if !exists {
		return nil, ErrActionNotFound
	}
	return a, nil
}

// Actions returns the actions in declared order.
func (s *Service) Actions() []*Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// StateVariable returns a state variable by name.
func (s *Service) StateVariable(name string) (*StateVariable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sv, exists := s.variables[name]
	if !exists {
		return nil, ErrStateVariableNotFound
	}
	return sv, nil
}

// StateVariables returns the state variables in declared order.
func (s *Service) StateVariables() []*StateVariable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*StateVariable, 0, len(s.varOrder))
	for _, name := range s.varOrder {
		out = append(out, s.variables[name])
	}
	return out
}

// Get returns the current value of a state variable.
func (s *Service) Get(name string) (any, error) {
	sv, err := s.StateVariable(name)
	if err != nil {
		return nil, err
	}
	return sv.Value(), nil
}

// Tx collects the changes of one logical update.
type Tx struct {
	svc     *Service
	pending map[string]any
	order   []string
}

// Set stages a new value for a state variable. The value is validated
// immediately; nothing is applied until the update function returns nil.
func (tx *Tx) Set(name string, value any) error {
	sv, err := tx.svc.StateVariable(name)
	if err != nil {
		return fmt.Errorf("%w: %s", err, name)
	}
	norm, err := sv.Validate(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if _, staged := tx.pending[name]; !staged {
		tx.order = append(tx.order, name)
	}
	tx.pending[name] = norm
	return nil
}

// Get returns the staged value of a variable, or its current value.
func (tx *Tx) Get(name string) (any, error) {
	if v, ok := tx.pending[name]; ok {
		return v, nil
	}
	return tx.svc.Get(name)
}

// Update runs fn as one logical update. Changes staged through the Tx are
// applied together if fn returns nil, and all evented variables that changed
// are reported to subscribers in a single call.
func (s *Service) Update(fn func(tx *Tx) error) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	tx := &Tx{svc: s, pending: make(map[string]any)}
	if err := fn(tx); err != nil {
		return err
	}

	var changes []Change
	for _, name := range tx.order {
		sv, _ := s.StateVariable(name)
		value := tx.pending[name]
		if sv.set(value) && sv.Evented() {
			changes = append(changes, Change{Name: name, Value: value})
		}
	}
	if len(changes) > 0 {
		s.notifyStateChanged(changes)
	}
	return nil
}

// Set changes a single state variable.
func (s *Service) Set(name string, value any) error {
	return s.Update(func(tx *Tx) error {
		return tx.Set(name, value)
	})
}

// Snapshot calls fn with the current value of every evented state variable
// while holding the update lock, so no change can be reported between the
// snapshot and the end of fn.
func (s *Service) Snapshot(fn func(evented []Change)) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	var evented []Change
	for _, sv := range s.StateVariables() {
		if sv.Evented() {
			evented = append(evented, Change{Name: sv.Name(), Value: sv.Value()})
		}
	}
	fn(evented)
}

// Subscribe adds a subscriber for change notifications.
func (s *Service) Subscribe(sub ServiceSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Unsubscribe removes a subscriber.
func (s *Service) Unsubscribe(sub ServiceSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.subscribers {
		if existing == sub {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// notifyStateChanged notifies all subscribers. Called with updateMu held.
func (s *Service) notifyStateChanged(changes []Change) {
	s.mu.RLock()
	subs := make([]ServiceSubscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.OnStateChanged(s, changes)
	}
}
