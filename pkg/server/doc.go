// Package server assembles a UPnP MediaServer:1 from the protocol packages.
//
// A MediaServer owns one root device carrying the ContentDirectory and
// ConnectionManager services. Start binds a single HTTP listener that serves
//
//	/dev/<uuid>/desc.xml              device description
//	/dev/<uuid>/svc/<id>/desc.xml     service description (SCPD)
//	/dev/<uuid>/svc/<id>/control      SOAP control
//	/dev/<uuid>/svc/<id>/event        GENA SUBSCRIBE/UNSUBSCRIBE
//	/metrics                          Prometheus metrics, when enabled
//
// and then registers the device. Registration drives SSDP: the registry's
// hooks advertise the tree on register and withdraw it, ending its event
// subscriptions, on unregister.
//
// Failure handling:
//   - a configured port that is taken falls back to an OS chosen port
//   - an SSDP socket that cannot join its group disables advertising, while
//     HTTP keeps serving
//
// With a StateFile the server keeps its UDN and SystemUpdateID across
// restarts.
package server
