// Package testutil provides fakes shared by package tests.
package testutil

import (
	"net"
	"sync"
	"time"
)

// Datagram is one packet seen by a MemConn.
type Datagram struct {
	Data []byte
	Addr net.Addr
}

// MemConn is an in-memory SSDP connection joined to the IPv4 group.
// Inbound datagrams are injected with Deliver; outbound ones are recorded.
type MemConn struct {
	in     chan Datagram
	out    chan Datagram
	closed chan struct{}
	once   sync.Once
}

// NewMemConn creates an open connection.
func NewMemConn() *MemConn {
	return &MemConn{
		in:     make(chan Datagram, 16),
		out:    make(chan Datagram, 256),
		closed: make(chan struct{}),
	}
}

// ReadFrom blocks until a datagram is delivered or the connection closes.
func (c *MemConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case d := <-c.in:
		return copy(b, d.Data), d.Addr, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

// WriteTo records b.
func (c *MemConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	c.out <- Datagram{Data: append([]byte(nil), b...), Addr: addr}
	return len(b), nil
}

// Group returns the IPv4 SSDP group.
func (c *MemConn) Group() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(239, 255, 255, 250), Port: 1900}
}

// Host returns the IPv4 HOST header value.
func (c *MemConn) Host() string { return "239.255.255.250:1900" }

// Close unblocks readers. It is safe to call more than once.
func (c *MemConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Deliver queues an inbound datagram from the given UDP address.
func (c *MemConn) Deliver(data []byte, from string) {
	addr, _ := net.ResolveUDPAddr("udp", from)
	c.in <- Datagram{Data: data, Addr: addr}
}

// Sent returns the datagrams written until the connection stays quiet for
// the given duration.
func (c *MemConn) Sent(quiet time.Duration) []Datagram {
	var out []Datagram
	for {
		select {
		case d := <-c.out:
			out = append(out, d)
		case <-time.After(quiet):
			return out
		}
	}
}
