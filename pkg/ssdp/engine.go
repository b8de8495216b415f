package ssdp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/upnp-media/upnp-go/pkg/log"
	"github.com/upnp-media/upnp-go/pkg/metrics"
	"github.com/upnp-media/upnp-go/pkg/model"
)

// Engine errors.
var (
	ErrAlreadyAdvertised = errors.New("device already advertised")
	ErrNotAdvertised     = errors.New("device not advertised")
	ErrEngineStopped     = errors.New("ssdp engine stopped")
)

// Default engine parameters.
const (
	DefaultMaxAge            = 1800 * time.Second
	DefaultJitter            = 0.1
	DefaultInitialRepeat     = 2
	DefaultRepeatGap         = 200 * time.Millisecond
	DefaultMaxResponseDelay  = 5 * time.Second
	DefaultSearchRate        = rate.Limit(5)
	DefaultSearchBurst       = 10
	DefaultPeerCheckInterval = 30 * time.Second

	maxLimiters = 1024
)

// Config configures an Engine.
type Config struct {
	// MaxAge is the advertised CACHE-CONTROL max-age. Announcements are
	// repeated every MaxAge/2.
	MaxAge time.Duration

	// Jitter is the fraction of the repeat interval by which each
	// announcement is randomly moved earlier or later. Zero disables it.
	Jitter float64

	// InitialRepeat is how many alive bursts are sent on Advertise.
	InitialRepeat int

	// RepeatGap separates the initial alive bursts.
	RepeatGap time.Duration

	// MaxResponseDelay caps the MX derived search response delay.
	MaxResponseDelay time.Duration

	// SearchRate and SearchBurst limit search responses per source address.
	SearchRate  rate.Limit
	SearchBurst int

	// PeerCheckInterval is how often expired peers are dropped.
	PeerCheckInterval time.Duration

	// DedupeWindow and ExpiryGrace configure the peer table.
	DedupeWindow time.Duration
	ExpiryGrace  time.Duration

	// Server is the SERVER header value.
	Server string

	// Logger is used for operational logging. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives every datagram sent and received.
	ProtocolLogger log.Logger

	// Metrics counts datagrams. Nil disables metrics.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxAge:            DefaultMaxAge,
		Jitter:            DefaultJitter,
		InitialRepeat:     DefaultInitialRepeat,
		RepeatGap:         DefaultRepeatGap,
		MaxResponseDelay:  DefaultMaxResponseDelay,
		SearchRate:        DefaultSearchRate,
		SearchBurst:       DefaultSearchBurst,
		PeerCheckInterval: DefaultPeerCheckInterval,
		DedupeWindow:      DefaultDedupeWindow,
		ExpiryGrace:       DefaultExpiryGrace,
	}
}

// advert is one advertised root device.
type advert struct {
	root     *model.Device
	location string
	targets  []target

	timer   *time.Timer
	pending map[*time.Timer]struct{}
}

// Engine advertises local root devices, answers searches and tracks
// remote peers over one or more multicast connections.
type Engine struct {
	config  Config
	conns   []Conn
	logger  *slog.Logger
	plog    log.Logger
	metrics *metrics.Metrics
	peers   *PeerTable

	mu       sync.Mutex
	adverts  map[string]*advert
	limiters map[string]*rate.Limiter
	started  bool
	stopped  bool
	onPeer   func(PeerEvent)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine sending and receiving on conns. Zero config
// fields take defaults.
func NewEngine(config Config, conns ...Conn) *Engine {
	def := DefaultConfig()
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if config.Jitter < 0 || config.Jitter >= 1 {
		config.Jitter = def.Jitter
	}
	if config.InitialRepeat <= 0 {
		config.InitialRepeat = def.InitialRepeat
	}
	if config.RepeatGap <= 0 {
		config.RepeatGap = def.RepeatGap
	}
	if config.MaxResponseDelay <= 0 {
		config.MaxResponseDelay = def.MaxResponseDelay
	}
	if config.SearchRate <= 0 {
		config.SearchRate = def.SearchRate
	}
	if config.SearchBurst <= 0 {
		config.SearchBurst = def.SearchBurst
	}
	if config.PeerCheckInterval <= 0 {
		config.PeerCheckInterval = def.PeerCheckInterval
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		config:   config,
		conns:    conns,
		logger:   logger,
		plog:     log.OrNoop(config.ProtocolLogger),
		metrics:  config.Metrics,
		peers:    NewPeerTable(config.DedupeWindow, config.ExpiryGrace),
		adverts:  make(map[string]*advert),
		limiters: make(map[string]*rate.Limiter),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.peers.OnEvent(e.peerEvent)
	return e
}

// Start begins reading from every connection and expiring peers.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	if e.started {
		return nil
	}
	e.started = true

	for _, c := range e.conns {
		e.wg.Add(1)
		go e.readLoop(c)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.config.PeerCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if n := e.peers.Expire(now); n > 0 {
					e.logger.Debug("peers expired", "count", n)
				}
			case <-ctx.Done():
				go e.Stop()
				return
			case <-e.ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop withdraws every advertised device, closes the connections and waits
// for the read loops to exit. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	udns := make([]string, 0, len(e.adverts))
	for udn := range e.adverts {
		udns = append(udns, udn)
	}
	e.mu.Unlock()

	for _, udn := range udns {
		_ = e.Withdraw(udn)
	}

	e.cancel()
	for _, c := range e.conns {
		_ = c.Close()
	}
	e.wg.Wait()
}

// Peers returns the table of remote advertisements.
func (e *Engine) Peers() *PeerTable {
	return e.peers
}

// OnPeer sets a callback for remote root devices appearing or leaving.
func (e *Engine) OnPeer(fn func(PeerEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPeer = fn
}

// Advertised returns the UDNs of the advertised root devices.
func (e *Engine) Advertised() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.adverts))
	for udn := range e.adverts {
		out = append(out, udn)
	}
	return out
}

// Advertise starts announcing a root device whose description is served at
// location. A byebye burst flushes stale caches, then alive is sent
// InitialRepeat times and repeated every MaxAge/2 with jitter.
func (e *Engine) Advertise(root *model.Device, location string) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	udn := root.UDN()
	if _, exists := e.adverts[udn]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyAdvertised, udn)
	}
	a := &advert{
		root:     root,
		location: location,
		targets:  targets(root),
		pending:  make(map[*time.Timer]struct{}),
	}
	e.adverts[udn] = a
	e.mu.Unlock()

	e.logger.Info("advertising device", "udn", udn, "location", location, "targets", len(a.targets))
	e.sendBurst(a, NTSByebye)
	e.sendBurst(a, NTSAlive)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.adverts[udn] != a {
		return nil
	}
	if e.config.InitialRepeat > 1 {
		e.scheduleRepeat(a, e.config.InitialRepeat-1)
	} else {
		e.schedule(a)
	}
	return nil
}

// scheduleRepeat sends the remaining initial alive bursts. Called with mu held.
func (e *Engine) scheduleRepeat(a *advert, remaining int) {
	a.timer = time.AfterFunc(e.config.RepeatGap, func() {
		if !e.current(a) {
			return
		}
		e.sendBurst(a, NTSAlive)

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.adverts[a.root.UDN()] != a {
			return
		}
		if remaining > 1 {
			e.scheduleRepeat(a, remaining-1)
		} else {
			e.schedule(a)
		}
	})
}

// schedule arms the periodic re-announcement. Called with mu held.
func (e *Engine) schedule(a *advert) {
	a.timer = time.AfterFunc(e.interval(), func() {
		if !e.current(a) {
			return
		}
		e.sendBurst(a, NTSAlive)

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.adverts[a.root.UDN()] == a {
			e.schedule(a)
		}
	})
}

// interval returns MaxAge/2 moved randomly by up to Jitter of itself.
func (e *Engine) interval() time.Duration {
	base := e.config.MaxAge / 2
	spread := time.Duration(float64(base) * e.config.Jitter)
	if spread <= 0 {
		return base
	}
	return base - spread + time.Duration(rand.Int64N(int64(2*spread)+1))
}

func (e *Engine) current(a *advert) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adverts[a.root.UDN()] == a
}

// Withdraw sends byebye for every target of a root device and cancels its
// timers, including delayed search responses.
func (e *Engine) Withdraw(udn string) error {
	e.mu.Lock()
	a, exists := e.adverts[udn]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAdvertised, udn)
	}
	delete(e.adverts, udn)
	if a.timer != nil {
		a.timer.Stop()
	}
	for t := range a.pending {
		t.Stop()
	}
	a.pending = nil
	e.mu.Unlock()

	e.sendBurst(a, NTSByebye)
	e.logger.Info("withdrew device", "udn", udn)
	return nil
}

// Search multicasts an M-SEARCH for st. Responses feed the peer table.
func (e *Engine) Search(st string, mx int) error {
	if st == "" {
		st = TargetAll
	}
	if mx < 1 {
		mx = 1
	}
	var errs []error
	for _, c := range e.conns {
		data := buildSearch(c.Host(), st, mx, e.config.Server)
		if err := e.write(c, data, c.Group(), MethodSearch, "", st, ""); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) sendBurst(a *advert, nts string) {
	for _, c := range e.conns {
		for _, t := range a.targets {
			data := buildNotify(c.Host(), nts, t, a.location, e.config.Server, e.config.MaxAge)
			_ = e.write(c, data, c.Group(), MethodNotify, nts, t.nt, t.usn)
		}
	}
}

func (e *Engine) write(c Conn, data []byte, to net.Addr, method, nts, nt, usn string) error {
	kind := messageKind(method, nts)
	_, err := c.WriteTo(data, to)
	if err != nil {
		e.metrics.SSDPMessage("out", "error")
		e.logger.Warn("ssdp send failed", "type", kind, "to", to.String(), "error", err)
		return err
	}
	e.metrics.SSDPMessage("out", kind)
	e.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  log.DirectionOut,
		Protocol:   log.ProtocolSSDP,
		Category:   log.CategoryMessage,
		RemoteAddr: to.String(),
		Datagram: &log.DatagramEvent{
			Method: method,
			NTS:    nts,
			Target: nt,
			USN:    usn,
			Size:   len(data),
		},
	})
	return nil
}

func messageKind(method, nts string) string {
	switch {
	case method == MethodSearch:
		return "search"
	case method == "":
		return "response"
	case nts == NTSByebye:
		return "byebye"
	default:
		return "alive"
	}
}

func (e *Engine) readLoop(c Conn) {
	defer e.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := c.ReadFrom(buf)
		if err != nil {
			if e.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.Warn("ssdp read failed", "error", err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		e.handle(c, data, from)
	}
}

// handle processes one inbound datagram. A panic while handling a datagram
// is logged and the datagram dropped.
func (e *Engine) handle(c Conn, data []byte, from net.Addr) {
	defer func() {
		if r := recover(); r != nil {
			e.drop(data, from, "panic")
			e.logger.Error("ssdp handler panic", "from", from.String(), "panic", r)
		}
	}()

	msg, err := ParseMessage(data)
	if err != nil {
		e.drop(data, from, "malformed")
		e.logger.Debug("dropping datagram", "from", from.String(), "error", err)
		return
	}

	e.metrics.SSDPMessage("in", messageKind(msg.Method, msg.Get("NTS")))
	e.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  log.DirectionIn,
		Protocol:   log.ProtocolSSDP,
		Category:   log.CategoryMessage,
		RemoteAddr: from.String(),
		Datagram: &log.DatagramEvent{
			Method: msg.Method,
			NTS:    msg.Get("NTS"),
			Target: firstNonEmpty(msg.NT(), msg.Get("ST")),
			USN:    msg.USN(),
			Size:   len(data),
		},
	})

	switch {
	case msg.Method == MethodSearch:
		e.handleSearch(c, msg, from)
	case msg.Method == MethodNotify, msg.IsResponse() && msg.StatusCode == 200:
		if e.isLocal(msg.USN()) {
			return
		}
		if e.peers.Observe(msg, from.String(), time.Now()) {
			e.metrics.SSDPPeers(len(e.peers.Roots()))
		}
	}
}

func (e *Engine) handleSearch(c Conn, msg *Message, from net.Addr) {
	if err := msg.Discover(); err != nil {
		e.drop(nil, from, "invalid_search")
		e.logger.Debug("dropping search", "from", from.String(), "error", err)
		return
	}
	mx, err := msg.MX()
	if err != nil {
		e.drop(nil, from, "invalid_search")
		e.logger.Debug("dropping search", "from", from.String(), "error", err)
		return
	}
	st := msg.Get("ST")
	if st == "" {
		e.drop(nil, from, "invalid_search")
		return
	}
	if !e.allow(from) {
		e.drop(nil, from, "rate_limited")
		e.logger.Debug("search rate limited", "from", from.String())
		return
	}

	maxDelay := time.Duration(mx) * time.Second
	if maxDelay > e.config.MaxResponseDelay {
		maxDelay = e.config.MaxResponseDelay
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	for _, a := range e.adverts {
		var replies [][]byte
		var usns []string
		for _, t := range a.targets {
			rst, ok := t.match(st)
			if !ok {
				continue
			}
			replies = append(replies, buildResponse(rst, t.usn, a.location, e.config.Server, e.config.MaxAge, time.Now()))
			usns = append(usns, t.usn)
		}
		if len(replies) == 0 {
			continue
		}
		e.respondLater(c, a, replies, usns, from, randomDelay(maxDelay))
	}
}

// respondLater sends search responses after delay unless the device is
// withdrawn first. Called with mu held.
func (e *Engine) respondLater(c Conn, a *advert, replies [][]byte, usns []string, to net.Addr, delay time.Duration) {
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		e.mu.Lock()
		_, live := a.pending[t]
		delete(a.pending, t)
		e.mu.Unlock()
		if !live {
			return
		}
		for i, data := range replies {
			_ = e.write(c, data, to, "", "", "", usns[i])
		}
	})
	a.pending[t] = struct{}{}
}

func randomDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

// allow applies the per-source search rate limit.
func (e *Engine) allow(from net.Addr) bool {
	key := from.String()
	if u, ok := from.(*net.UDPAddr); ok {
		key = u.IP.String()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[key]
	if !ok {
		if len(e.limiters) >= maxLimiters {
			e.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(e.config.SearchRate, e.config.SearchBurst)
		e.limiters[key] = l
	}
	return l.Allow()
}

// isLocal reports whether usn belongs to one of our advertised trees.
func (e *Engine) isLocal(usn string) bool {
	udn, _, _ := strings.Cut(usn, "::")
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range e.adverts {
		for _, t := range a.targets {
			if t.udn == udn {
				return true
			}
		}
	}
	return false
}

func (e *Engine) drop(data []byte, from net.Addr, reason string) {
	e.metrics.SSDPDropped(reason)
	e.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  log.DirectionIn,
		Protocol:   log.ProtocolSSDP,
		Category:   log.CategoryError,
		RemoteAddr: from.String(),
		Datagram:   &log.DatagramEvent{Size: len(data), Dropped: true},
		Error: &log.ErrorEventData{
			Protocol: log.ProtocolSSDP,
			Message:  reason,
		},
	})
}

func (e *Engine) peerEvent(ev PeerEvent) {
	e.metrics.SSDPPeers(len(e.peers.Roots()))
	old, new := "ABSENT", "PRESENT"
	if ev.Type == PeerRemoved {
		old, new = new, old
	}
	e.logger.Info("peer "+strings.ToLower(ev.Type.String()), "usn", ev.Peer.USN, "location", ev.Peer.Location, "reason", ev.Reason)
	e.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Protocol:   log.ProtocolSSDP,
		Category:   log.CategoryState,
		RemoteAddr: ev.Peer.Addr,
		UDN:        ev.Peer.USN,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityPeer,
			OldState: old,
			NewState: new,
			Reason:   ev.Reason,
		},
	})

	e.mu.Lock()
	fn := e.onPeer
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
