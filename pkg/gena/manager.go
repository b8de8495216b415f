package gena

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/upnp-media/upnp-go/pkg/log"
	"github.com/upnp-media/upnp-go/pkg/metrics"
	"github.com/upnp-media/upnp-go/pkg/model"
)

// Default eventing parameters.
const (
	DefaultTimeout          = 1800 * time.Second
	DefaultMinTimeout       = 60 * time.Second
	DefaultMaxTimeout       = 1800 * time.Second
	DefaultFailureThreshold = 3
	DefaultQueueSize        = 32
	DefaultDeliveryTimeout  = 5 * time.Second
	DefaultRetryDelay       = time.Second
	DefaultMaxRetryDelay    = 30 * time.Second
	DefaultReapInterval     = 30 * time.Second
	DefaultMaxSubscriptions = 256
)

// Config holds event manager configuration.
type Config struct {
	// DefaultTimeout is granted when the subscriber asks for none or for
	// an infinite subscription.
	DefaultTimeout time.Duration

	// MinTimeout and MaxTimeout bound the granted timeout.
	MinTimeout time.Duration
	MaxTimeout time.Duration

	// FailureThreshold is the number of consecutive failed deliveries
	// after which a subscription is cancelled.
	FailureThreshold int

	// QueueSize bounds each subscriber's outbound queue. Events arriving at
	// a full queue are merged into the newest queued event.
	QueueSize int

	// DeliveryTimeout bounds one NOTIFY attempt.
	DeliveryTimeout time.Duration

	// RetryDelay is the wait before resending an event whose delivery
	// failed. It doubles with each consecutive failure up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// ReapInterval is how often expired subscriptions are removed.
	ReapInterval time.Duration

	// MaxSubscriptions limits live subscriptions across all services.
	MaxSubscriptions int

	// Deliverer sends events. Nil uses an HTTPDeliverer.
	Deliverer Deliverer

	// Logger is used for operational logging. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives GENA protocol events. Nil disables capture.
	ProtocolLogger log.Logger

	// Metrics records delivery outcomes. Nil disables metrics.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default event manager configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:   DefaultTimeout,
		MinTimeout:       DefaultMinTimeout,
		MaxTimeout:       DefaultMaxTimeout,
		FailureThreshold: DefaultFailureThreshold,
		QueueSize:        DefaultQueueSize,
		DeliveryTimeout:  DefaultDeliveryTimeout,
		RetryDelay:       DefaultRetryDelay,
		MaxRetryDelay:    DefaultMaxRetryDelay,
		ReapInterval:     DefaultReapInterval,
		MaxSubscriptions: DefaultMaxSubscriptions,
	}
}

// Manager tracks subscriptions per service and delivers their events.
type Manager struct {
	mu sync.RWMutex

	config    Config
	logger    *slog.Logger
	plog      log.Logger
	deliverer Deliverer

	subscriptions map[string]*Subscription
	byService     map[*model.Service]map[string]*Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onStateChange func(sid string, old, new State)
}

// NewManager creates an event manager. Zero config fields take defaults.
func NewManager(config Config) *Manager {
	def := DefaultConfig()
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = def.DefaultTimeout
	}
	if config.MinTimeout <= 0 {
		config.MinTimeout = def.MinTimeout
	}
	if config.MaxTimeout <= 0 {
		config.MaxTimeout = def.MaxTimeout
	}
	if config.MaxTimeout < config.MinTimeout {
		config.MaxTimeout = config.MinTimeout
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = def.DeliveryTimeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = def.RetryDelay
	}
	if config.MaxRetryDelay < config.RetryDelay {
		config.MaxRetryDelay = max(def.MaxRetryDelay, config.RetryDelay)
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = def.ReapInterval
	}
	if config.MaxSubscriptions <= 0 {
		config.MaxSubscriptions = def.MaxSubscriptions
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	deliverer := config.Deliverer
	if deliverer == nil {
		deliverer = NewHTTPDeliverer(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:        config,
		logger:        logger,
		plog:          log.OrNoop(config.ProtocolLogger),
		deliverer:     deliverer,
		subscriptions: make(map[string]*Subscription),
		byService:     make(map[*model.Service]map[string]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start runs the expiry reaper until ctx is done or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.ReapExpired()
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels every subscription and waits for delivery loops to exit.
func (m *Manager) Stop() {
	m.mu.RLock()
	sids := make([]string, 0, len(m.subscriptions))
	for sid := range m.subscriptions {
		sids = append(sids, sid)
	}
	m.mu.RUnlock()

	for _, sid := range sids {
		m.remove(sid, StateCancelled, "teardown")
	}
	m.cancel()
	m.wg.Wait()
}

// GrantTimeout clamps a requested timeout to the configured bounds.
// Zero or negative requests (none or infinite) get the default.
func (m *Manager) GrantTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		requested = m.config.DefaultTimeout
	}
	if requested < m.config.MinTimeout {
		return m.config.MinTimeout
	}
	if requested > m.config.MaxTimeout {
		return m.config.MaxTimeout
	}
	return requested
}

// Subscribe creates an active subscription and queues the initial event
// (SEQ 0) with every evented variable of the service.
func (m *Manager) Subscribe(svc *model.Service, callbacks []*url.URL, requested time.Duration) (*Subscription, error) {
	sub, err := m.subscribe(svc, callbacks, requested)
	if err != nil {
		return nil, err
	}
	m.activate(sub)
	return sub, nil
}

// subscribe creates a Pending subscription. The caller activates it once
// the subscriber has been told its SID.
func (m *Manager) subscribe(svc *model.Service, callbacks []*url.URL, requested time.Duration) (*Subscription, error) {
	if len(callbacks) == 0 {
		return nil, fmt.Errorf("%w: none given", ErrInvalidCallback)
	}
	for _, cb := range callbacks {
		if cb.Scheme != "http" || cb.Host == "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCallback, cb)
		}
	}
	if m.ctx.Err() != nil {
		return nil, ErrManagerStopped
	}

	sid := "uuid:" + uuid.New().String()
	sub := newSubscription(sid, svc, callbacks, m.GrantTimeout(requested))

	var err error
	svc.Snapshot(func(evented []model.Change) {
		m.mu.Lock()
		defer m.mu.Unlock()

		if len(m.subscriptions) >= m.config.MaxSubscriptions {
			err = ErrResourceExhausted
			return
		}
		m.subscriptions[sid] = sub
		subs, watched := m.byService[svc]
		if !watched {
			subs = make(map[string]*Subscription)
			m.byService[svc] = subs
			svc.Subscribe(m)
		}
		subs[sid] = sub
		sub.enqueue(encodeChanges(svc, evented), 0)
	})
	if err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go m.deliverLoop(sub)

	m.config.Metrics.GENASubscriptions(m.Count())
	m.logger.Info("subscription created", "sid", sid, "service", svc.ID(), "timeout", sub.timeout, "callback", callbacks[0].String())
	return sub, nil
}

func (m *Manager) activate(sub *Subscription) {
	sub.activate()
	m.notifyStateChange(sub.SID, StatePending, StateActive)
	m.logState(sub.SID, StatePending, StateActive, "")
}

// Renew extends a live subscription. The sequence counter is unchanged.
func (m *Manager) Renew(sid string, requested time.Duration) (time.Duration, error) {
	m.mu.RLock()
	sub, exists := m.subscriptions[sid]
	m.mu.RUnlock()

	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSubscriber, sid)
	}

	granted := m.GrantTimeout(requested)
	old := sub.State()
	if !sub.renew(granted, time.Now()) {
		m.remove(sid, StateExpired, "expired")
		return 0, fmt.Errorf("%w: %s expired", ErrUnknownSubscriber, sid)
	}
	if old != StateRenewed {
		m.notifyStateChange(sid, old, StateRenewed)
	}
	m.logger.Debug("subscription renewed", "sid", sid, "timeout", granted)
	return granted, nil
}

// Unsubscribe cancels a subscription.
func (m *Manager) Unsubscribe(sid string) error {
	if !m.remove(sid, StateCancelled, "unsubscribed") {
		return fmt.Errorf("%w: %s", ErrUnknownSubscriber, sid)
	}
	return nil
}

// OnStateChanged implements model.ServiceSubscriber.
func (m *Manager) OnStateChanged(svc *model.Service, changes []model.Change) {
	m.Notify(svc, changes)
}

// Notify queues one event per live subscriber of svc carrying all the given
// changes. Delivery is asynchronous.
func (m *Manager) Notify(svc *model.Service, changes []model.Change) {
	if len(changes) == 0 {
		return
	}
	vars := encodeChanges(svc, changes)

	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.byService[svc]))
	for _, sub := range m.byService[svc] {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.enqueue(vars, m.config.QueueSize) {
			m.config.Metrics.GENADelivery("coalesced")
			m.logger.Warn("event queue full, coalescing", "sid", sub.SID)
		}
	}
}

// CancelService cancels every subscription on svc.
func (m *Manager) CancelService(svc *model.Service) {
	m.mu.Lock()
	subs := m.byService[svc]
	sids := make([]string, 0, len(subs))
	for sid := range subs {
		sids = append(sids, sid)
	}
	m.mu.Unlock()

	for _, sid := range sids {
		m.remove(sid, StateCancelled, "teardown")
	}
}

// ReapExpired removes subscriptions whose timeout has elapsed.
func (m *Manager) ReapExpired() int {
	now := time.Now()

	m.mu.RLock()
	var expired []string
	for sid, sub := range m.subscriptions {
		if sub.expired(now) {
			expired = append(expired, sid)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, sid := range expired {
		if m.remove(sid, StateExpired, "expired") {
			n++
		}
	}
	return n
}

// remove ends a subscription and drops it from the indices.
func (m *Manager) remove(sid string, state State, reason string) bool {
	m.mu.Lock()
	sub, exists := m.subscriptions[sid]
	if !exists {
		m.mu.Unlock()
		return false
	}
	delete(m.subscriptions, sid)
	if subs := m.byService[sub.Service]; subs != nil {
		delete(subs, sid)
		if len(subs) == 0 {
			// Under m.mu so a concurrent subscribe cannot register m
			// with the service a second time.
			delete(m.byService, sub.Service)
			sub.Service.Unsubscribe(m)
		}
	}
	m.mu.Unlock()

	old, ended := sub.end(state)
	if !ended {
		return false
	}

	m.config.Metrics.GENAEnded(reason)
	m.config.Metrics.GENASubscriptions(m.Count())
	m.logger.Info("subscription ended", "sid", sid, "state", state, "reason", reason)
	m.notifyStateChange(sid, old, state)
	m.logState(sid, old, state, reason)
	return true
}

// deliverLoop drains one subscriber's queue in order. An event stays at
// the head of the queue until it is delivered, so the subscriber never sees
// a SEQ gap while the subscription is live.
func (m *Manager) deliverLoop(sub *Subscription) {
	defer m.wg.Done()

	for {
		select {
		case <-sub.wake:
		case <-sub.done:
			return
		case <-m.ctx.Done():
			return
		}

		for {
			ev := sub.head()
			if ev == nil {
				break
			}
			if !m.deliver(sub, ev) {
				return
			}
		}
	}
}

// deliver sends the head event and applies the failure policy. A failed
// event is kept for a retry after a backoff. Returns false if the
// subscription ended.
func (m *Manager) deliver(sub *Subscription, ev *Event) bool {
	ctx, cancel := context.WithTimeout(m.ctx, m.config.DeliveryTimeout)
	status, err := m.deliverer.Deliver(ctx, sub.Callbacks(), ev)
	cancel()

	m.logNotify(sub, ev, status)
	failures := sub.recordResult(err)
	if err == nil {
		sub.ack(ev)
		m.config.Metrics.GENADelivery("ok")
		return true
	}

	m.config.Metrics.GENADelivery("failed")
	m.logger.Warn("event delivery failed", "sid", sub.SID, "seq", ev.Seq, "failures", failures, "error", err)
	if failures >= m.config.FailureThreshold {
		m.remove(sub.SID, StateCancelled, "failures")
		return false
	}

	timer := time.NewTimer(m.retryDelay(failures))
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-sub.done:
		return false
	case <-m.ctx.Done():
		return false
	}
}

// retryDelay returns the backoff after the given number of consecutive
// failures.
func (m *Manager) retryDelay(failures int) time.Duration {
	d := m.config.RetryDelay
	for i := 1; i < failures && d < m.config.MaxRetryDelay; i++ {
		d *= 2
	}
	return min(d, m.config.MaxRetryDelay)
}

// Get returns a live subscription by SID.
func (m *Manager) Get(sid string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, exists := m.subscriptions[sid]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubscriber, sid)
	}
	return sub, nil
}

// Count returns the number of live subscriptions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// ServiceCount returns the number of live subscriptions on svc.
func (m *Manager) ServiceCount(svc *model.Service) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byService[svc])
}

// All returns a snapshot of every live subscription.
func (m *Manager) All() []Info {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub.Info())
	}
	return out
}

// OnStateChange sets a callback for subscription state transitions.
func (m *Manager) OnStateChange(fn func(sid string, old, new State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

func (m *Manager) notifyStateChange(sid string, old, new State) {
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(sid, old, new)
	}
}

func (m *Manager) logState(sid string, old, new State, reason string) {
	m.plog.Log(log.Event{
		Timestamp: time.Now(),
		Protocol:  log.ProtocolGENA,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			OldState: old.String(),
			NewState: new.String(),
			Reason:   reason,
		},
		Notify: &log.NotifyEvent{Method: "STATE", SID: sid},
	})
}

func (m *Manager) logNotify(sub *Subscription, ev *Event, status int) {
	names := make([]string, len(ev.Variables))
	for i, v := range ev.Variables {
		names[i] = v.Name
	}
	seq := ev.Seq
	m.plog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Protocol:  log.ProtocolGENA,
		Category:  log.CategoryMessage,
		ServiceID: sub.Service.ID(),
		Notify: &log.NotifyEvent{
			Type:       log.MessageTypeNotification,
			Method:     "NOTIFY",
			SID:        sub.SID,
			Seq:        &seq,
			Variables:  names,
			StatusCode: status,
		},
	})
}

// encodeChanges renders changes in wire form using each variable's type.
func encodeChanges(svc *model.Service, changes []model.Change) []Variable {
	vars := make([]Variable, 0, len(changes))
	for _, c := range changes {
		value := ""
		if sv, err := svc.StateVariable(c.Name); err == nil {
			value, _ = sv.Type().Encode(c.Value)
		}
		vars = append(vars, Variable{Name: c.Name, Value: value})
	}
	return vars
}

// Compile-time interface satisfaction check.
var _ model.ServiceSubscriber = (*Manager)(nil)
