// Package registry tracks the devices this instance publishes.
//
// The registry is the single source of truth for what SSDP advertises and
// what the SOAP dispatcher and GENA handler may route to. Registering a root
// device assigns HTTP paths to every service in its tree:
//
//	/dev/<uuid>/desc.xml              device description
//	/dev/<uuid>/svc/<name>/desc.xml   service description (SCPD)
//	/dev/<uuid>/svc/<name>/control    SOAP control
//	/dev/<uuid>/svc/<name>/event      GENA subscription
//
// Devices do not point at their parents. Parent lookups go through the
// registry's child to parent table.
package registry
