// Package ssdp implements the Simple Service Discovery Protocol for UPnP
// devices.
//
// The Engine announces local root devices on the SSDP multicast group,
// answers M-SEARCH requests and tracks announcements of other devices in a
// PeerTable.
//
// # Advertisement
//
// Each root device is announced with one NOTIFY per target:
//
//	upnp:rootdevice                      once per root device
//	uuid:<udn>                           once per device in the tree
//	urn:...:device:<type>:<v>            once per device in the tree
//	urn:...:service:<type>:<v>           once per distinct service type
//
// Advertise first sends byebye for every target to flush stale caches, then
// alive twice, and repeats alive every max-age/2 with random jitter.
// Withdraw sends byebye and cancels all timers of the device, including
// delayed search responses.
//
// # Search
//
// An M-SEARCH needs MAN: "ssdp:discover" and a numeric MX; anything else is
// dropped. Responses are sent unicast after a random delay of up to
// min(MX, 5) seconds. A type search for version N is answered by devices and
// services advertising version N or later. Responses are rate limited per
// source address.
//
// # Transport
//
// Conn abstracts the multicast socket. ListenIPv4 and ListenIPv6 provide
// implementations on golang.org/x/net joined to 239.255.255.250:1900 and
// [ff05::c]:1900.
package ssdp
