package ssdp

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Multicast parameters.
const (
	MulticastTTL = 2
	maxDatagram  = 8192
)

// ErrNoInterfaces is returned when no multicast capable interface is up.
var ErrNoInterfaces = errors.New("no multicast interface available")

// Conn is a datagram endpoint joined to an SSDP multicast group.
type Conn interface {
	// ReadFrom reads one datagram.
	ReadFrom(b []byte) (int, net.Addr, error)

	// WriteTo sends one datagram to addr.
	WriteTo(b []byte, addr net.Addr) (int, error)

	// Group returns the multicast destination for announcements.
	Group() net.Addr

	// Host returns the HOST header value for multicast messages.
	Host() string

	// Close leaves the group and closes the socket.
	Close() error
}

// interfaces returns the named interface, or every interface that is up and
// multicast capable when name is empty.
func interfaces(name string) ([]net.Interface, error) {
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", name, err)
		}
		return []net.Interface{*iface}, nil
	}

	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.Interface
	for _, iface := range all {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagMulticast != 0 {
			out = append(out, iface)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoInterfaces
	}
	return out, nil
}

type ipv4Conn struct {
	pc    *ipv4.PacketConn
	raw   net.PacketConn
	group *net.UDPAddr
	ifs   []net.Interface
}

// ListenIPv4 joins 239.255.255.250:1900 on the named interface, or on all
// multicast interfaces when ifaceName is empty.
func ListenIPv4(ifaceName string) (Conn, error) {
	ifs, err := interfaces(ifaceName)
	if err != nil {
		return nil, err
	}

	raw, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", Port))
	if err != nil {
		return nil, fmt.Errorf("listen udp4: %w", err)
	}
	pc := ipv4.NewPacketConn(raw)
	group := &net.UDPAddr{IP: net.ParseIP(GroupIPv4), Port: Port}

	joined := 0
	for i := range ifs {
		if err := pc.JoinGroup(&ifs[i], group); err == nil {
			joined++
		}
	}
	if joined == 0 {
		raw.Close()
		return nil, fmt.Errorf("join %s: %w", GroupIPv4, ErrNoInterfaces)
	}
	if ifaceName != "" {
		if err := pc.SetMulticastInterface(&ifs[0]); err != nil {
			raw.Close()
			return nil, fmt.Errorf("multicast interface: %w", err)
		}
	}
	_ = pc.SetMulticastTTL(MulticastTTL)
	_ = pc.SetMulticastLoopback(true)

	return &ipv4Conn{pc: pc, raw: raw, group: group, ifs: ifs}, nil
}

func (c *ipv4Conn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, _, src, err := c.pc.ReadFrom(b)
	return n, src, err
}

func (c *ipv4Conn) WriteTo(b []byte, addr net.Addr) (int, error) {
	return c.pc.WriteTo(b, nil, addr)
}

func (c *ipv4Conn) Group() net.Addr { return c.group }
func (c *ipv4Conn) Host() string    { return hostHeader }

func (c *ipv4Conn) Close() error {
	for i := range c.ifs {
		_ = c.pc.LeaveGroup(&c.ifs[i], c.group)
	}
	return c.raw.Close()
}

type ipv6Conn struct {
	pc    *ipv6.PacketConn
	raw   net.PacketConn
	group *net.UDPAddr
	ifs   []net.Interface
}

// ListenIPv6 joins [ff05::c]:1900 on the named interface, or on all
// multicast interfaces when ifaceName is empty.
func ListenIPv6(ifaceName string) (Conn, error) {
	ifs, err := interfaces(ifaceName)
	if err != nil {
		return nil, err
	}

	raw, err := net.ListenPacket("udp6", fmt.Sprintf("[::]:%d", Port))
	if err != nil {
		return nil, fmt.Errorf("listen udp6: %w", err)
	}
	pc := ipv6.NewPacketConn(raw)
	group := &net.UDPAddr{IP: net.ParseIP(GroupIPv6), Port: Port}

	joined := 0
	for i := range ifs {
		if err := pc.JoinGroup(&ifs[i], group); err == nil {
			joined++
		}
	}
	if joined == 0 {
		raw.Close()
		return nil, fmt.Errorf("join %s: %w", GroupIPv6, ErrNoInterfaces)
	}
	if ifaceName != "" {
		if err := pc.SetMulticastInterface(&ifs[0]); err != nil {
			raw.Close()
			return nil, fmt.Errorf("multicast interface: %w", err)
		}
	}
	_ = pc.SetMulticastHopLimit(MulticastTTL)
	_ = pc.SetMulticastLoopback(true)

	return &ipv6Conn{pc: pc, raw: raw, group: group, ifs: ifs}, nil
}

func (c *ipv6Conn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, _, src, err := c.pc.ReadFrom(b)
	return n, src, err
}

func (c *ipv6Conn) WriteTo(b []byte, addr net.Addr) (int, error) {
	return c.pc.WriteTo(b, nil, addr)
}

func (c *ipv6Conn) Group() net.Addr { return c.group }
func (c *ipv6Conn) Host() string    { return hostIPv6 }

func (c *ipv6Conn) Close() error {
	for i := range c.ifs {
		_ = c.pc.LeaveGroup(&c.ifs[i], c.group)
	}
	return c.raw.Close()
}

// Compile-time interface satisfaction checks.
var (
	_ Conn = (*ipv4Conn)(nil)
	_ Conn = (*ipv6Conn)(nil)
)
