package ssdp

import (
	"sort"
	"sync"
	"time"
)

// Peer table defaults.
const (
	DefaultDedupeWindow = 2 * time.Second
	DefaultExpiryGrace  = 30 * time.Second
	defaultPeerMaxAge   = 1800 * time.Second
)

// PeerEventType distinguishes peer table events.
type PeerEventType uint8

const (
	// PeerAdded is published when a remote root device first announces.
	PeerAdded PeerEventType = iota

	// PeerRemoved is published on byebye or expiry.
	PeerRemoved
)

// String returns the event type name.
func (t PeerEventType) String() string {
	switch t {
	case PeerAdded:
		return "ADDED"
	case PeerRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// Peer is a remote advertisement.
type Peer struct {
	USN      string
	NT       string
	Location string
	Server   string
	Addr     string
	MaxAge   time.Duration
	LastSeen time.Time
}

// Root reports whether the peer is a root device advertisement.
func (p Peer) Root() bool {
	return p.NT == TargetRootDevice
}

// expires returns when the peer is dropped without a refresh.
func (p Peer) expires(grace time.Duration) time.Time {
	return p.LastSeen.Add(p.MaxAge + grace)
}

// PeerEvent reports a root device appearing or leaving.
type PeerEvent struct {
	Type   PeerEventType
	Peer   Peer
	Reason string
}

// PeerTable tracks advertisements of other devices on the network.
type PeerTable struct {
	mu     sync.Mutex
	window time.Duration
	grace  time.Duration
	peers  map[string]*Peer

	onEvent func(PeerEvent)
}

// NewPeerTable creates a peer table. Zero durations take defaults.
func NewPeerTable(dedupeWindow, expiryGrace time.Duration) *PeerTable {
	if dedupeWindow <= 0 {
		dedupeWindow = DefaultDedupeWindow
	}
	if expiryGrace <= 0 {
		expiryGrace = DefaultExpiryGrace
	}
	return &PeerTable{
		window: dedupeWindow,
		grace:  expiryGrace,
		peers:  make(map[string]*Peer),
	}
}

// OnEvent sets the callback for root device events.
func (t *PeerTable) OnEvent(fn func(PeerEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvent = fn
}

// Observe records an alive or byebye NOTIFY, or a search response.
// Returns false when the message was a duplicate inside the dedupe window or
// carried nothing to track.
func (t *PeerTable) Observe(msg *Message, from string, now time.Time) bool {
	usn := msg.USN()
	nt := msg.NT()
	if usn == "" || nt == "" {
		return false
	}

	if !msg.IsResponse() && msg.Get("NTS") == NTSByebye {
		return t.remove(usn, "byebye")
	}
	if !msg.IsResponse() && msg.Get("NTS") != NTSAlive {
		return false
	}

	maxAge := msg.MaxAge()
	if maxAge <= 0 {
		maxAge = defaultPeerMaxAge
	}

	t.mu.Lock()
	p, exists := t.peers[usn]
	if exists && p.NT == nt && now.Sub(p.LastSeen) < t.window {
		t.mu.Unlock()
		return false
	}
	if !exists {
		p = &Peer{USN: usn}
		t.peers[usn] = p
	}
	p.NT = nt
	p.Location = msg.Get("Location")
	p.Server = msg.Get("Server")
	p.Addr = from
	p.MaxAge = maxAge
	p.LastSeen = now
	snapshot := *p
	fn := t.onEvent
	t.mu.Unlock()

	if !exists && snapshot.Root() && fn != nil {
		fn(PeerEvent{Type: PeerAdded, Peer: snapshot})
	}
	return true
}

func (t *PeerTable) remove(usn, reason string) bool {
	t.mu.Lock()
	p, exists := t.peers[usn]
	if !exists {
		t.mu.Unlock()
		return false
	}
	delete(t.peers, usn)
	fn := t.onEvent
	t.mu.Unlock()

	if p.Root() && fn != nil {
		fn(PeerEvent{Type: PeerRemoved, Peer: *p, Reason: reason})
	}
	return true
}

// Expire drops peers not refreshed within max-age plus the grace period.
// Returns the number removed.
func (t *PeerTable) Expire(now time.Time) int {
	t.mu.Lock()
	var stale []string
	for usn, p := range t.peers {
		if now.After(p.expires(t.grace)) {
			stale = append(stale, usn)
		}
	}
	t.mu.Unlock()

	n := 0
	for _, usn := range stale {
		if t.remove(usn, "expired") {
			n++
		}
	}
	return n
}

// Peers returns every known advertisement sorted by USN.
func (t *PeerTable) Peers() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].USN < out[j].USN })
	return out
}

// Roots returns the known remote root devices.
func (t *PeerTable) Roots() []Peer {
	var out []Peer
	for _, p := range t.Peers() {
		if p.Root() {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of tracked advertisements.
func (t *PeerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}
