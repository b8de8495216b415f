package gena

import (
	"errors"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/upnp-media/upnp-go/pkg/model"
)

// Subscription errors.
var (
	ErrUnknownSubscriber = errors.New("unknown subscriber")
	ErrInvalidCallback   = errors.New("invalid callback URL")
	ErrResourceExhausted = errors.New("maximum subscriptions reached")
	ErrManagerStopped    = errors.New("event manager stopped")
)

// State is the lifecycle state of a subscription.
type State uint8

const (
	// StatePending is a subscription whose SUBSCRIBE response has not been
	// sent yet. Events queue up but are not delivered.
	StatePending State = iota

	// StateActive is a subscription receiving events.
	StateActive

	// StateRenewed is an active subscription that has been renewed at least
	// once.
	StateRenewed

	// StateExpired is a subscription whose timeout elapsed without renewal.
	StateExpired

	// StateCancelled is a subscription ended by unsubscribe, repeated
	// delivery failure or device teardown.
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateRenewed:
		return "RENEWED"
	case StateExpired:
		return "EXPIRED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Live reports whether a subscription in this state receives events.
func (s State) Live() bool {
	return s == StatePending || s == StateActive || s == StateRenewed
}

// Variable is an evented state variable in wire form.
type Variable struct {
	Name  string
	Value string
}

// Event is one NOTIFY message for one subscriber.
type Event struct {
	SID       string
	Seq       uint32
	Variables []Variable
}

// merge folds newer variables into e; newer values win and keep e's order
// for names already present.
func (e *Event) merge(vars []Variable) {
	for _, v := range vars {
		found := false
		for i := range e.Variables {
			if e.Variables[i].Name == v.Name {
				e.Variables[i].Value = v.Value
				found = true
				break
			}
		}
		if !found {
			e.Variables = append(e.Variables, v)
		}
	}
}

// nextSeq returns the sequence number following seq. Zero is reserved for
// the initial event, so the counter wraps to 1.
func nextSeq(seq uint32) uint32 {
	if seq == math.MaxUint32 {
		return 1
	}
	return seq + 1
}

// Subscription is one subscriber's registration on one service.
type Subscription struct {
	mu sync.Mutex

	// SID is the subscription identifier ("uuid:...").
	SID string

	// Service is the subscribed service.
	Service *model.Service

	callbacks []*url.URL
	timeout   time.Duration
	expires   time.Time
	state     State

	// lastSeq is the sequence number of the most recently queued event.
	lastSeq  uint32
	queued   bool
	failures int

	queue []*Event
	// inflight is the head event while a delivery attempt owns it.
	inflight *Event
	wake     chan struct{}
	done  chan struct{}
}

func newSubscription(sid string, svc *model.Service, callbacks []*url.URL, timeout time.Duration) *Subscription {
	return &Subscription{
		SID:       sid,
		Service:   svc,
		callbacks: callbacks,
		timeout:   timeout,
		expires:   time.Now().Add(timeout),
		state:     StatePending,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Info is a point-in-time view of a subscription.
type Info struct {
	SID       string
	ServiceID string
	Callbacks []string
	State     State
	Expires   time.Time
	Timeout   time.Duration
	LastSeq   uint32
	Failures  int
	Queued    int
}

// Info returns a snapshot of the subscription.
func (s *Subscription) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	cbs := make([]string, len(s.callbacks))
	for i, u := range s.callbacks {
		cbs[i] = u.String()
	}
	return Info{
		SID:       s.SID,
		ServiceID: s.Service.ID(),
		Callbacks: cbs,
		State:     s.state,
		Expires:   s.expires,
		Timeout:   s.timeout,
		LastSeq:   s.lastSeq,
		Failures:  s.failures,
		Queued:    len(s.queue),
	}
}

// State returns the current state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Callbacks returns the callback URLs in preference order.
func (s *Subscription) Callbacks() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*url.URL, len(s.callbacks))
	copy(out, s.callbacks)
	return out
}

// enqueue appends an event with the next sequence number. When the queue is
// full the variables are merged into the newest queued event instead, so
// sequence numbers stay gap free. An event being delivered is never merged
// into. Reports whether events were coalesced.
func (s *Subscription) enqueue(vars []Variable, maxQueue int) (coalesced bool) {
	s.mu.Lock()
	if !s.state.Live() {
		s.mu.Unlock()
		return false
	}

	if maxQueue > 0 && len(s.queue) >= maxQueue && s.queue[len(s.queue)-1] != s.inflight {
		s.queue[len(s.queue)-1].merge(vars)
		coalesced = true
	} else {
		seq := uint32(0)
		if s.queued {
			seq = nextSeq(s.lastSeq)
		}
		s.lastSeq = seq
		s.queued = true
		ev := &Event{SID: s.SID, Seq: seq, Variables: append([]Variable(nil), vars...)}
		s.queue = append(s.queue, ev)
	}
	deliverable := s.state != StatePending
	s.mu.Unlock()

	if deliverable {
		s.signal()
	}
	return coalesced
}

// head returns the oldest queued event without removing it and marks it in
// flight. It returns nil while the subscription is pending or ended.
func (s *Subscription) head() *Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 || s.state == StatePending || !s.state.Live() {
		return nil
	}
	s.inflight = s.queue[0]
	return s.inflight
}

// ack removes ev from the head of the queue after a successful delivery.
func (s *Subscription) ack(ev *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight == ev {
		s.inflight = nil
	}
	if len(s.queue) > 0 && s.queue[0] == ev {
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// activate moves a pending subscription to Active and releases its queue.
func (s *Subscription) activate() {
	s.mu.Lock()
	if s.state == StatePending {
		s.state = StateActive
	}
	s.mu.Unlock()
	s.signal()
}

// renew extends the expiry. Returns false if the subscription is no longer
// live or has already expired.
func (s *Subscription) renew(timeout time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Live() || now.After(s.expires) {
		return false
	}
	s.timeout = timeout
	s.expires = now.Add(timeout)
	if s.state == StateActive {
		s.state = StateRenewed
	}
	return true
}

// expired reports whether the expiry time has passed.
func (s *Subscription) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.expires)
}

// end moves the subscription to a terminal state and stops its delivery
// loop. Returns the previous state, or false if it had already ended.
func (s *Subscription) end(state State) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Live() {
		return s.state, false
	}
	old := s.state
	s.state = state
	s.queue = nil
	s.inflight = nil
	close(s.done)
	return old, true
}

// recordResult updates the consecutive failure counter and returns it.
func (s *Subscription) recordResult(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.failures = 0
	} else {
		s.failures++
	}
	return s.failures
}
