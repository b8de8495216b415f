// Package connectionmanager implements the ConnectionManager:1 service of a
// MediaServer.
//
// A media server only sources content, so SinkProtocolInfo is always empty
// and PrepareForConnection accepts the Output direction only. The remote
// protocolInfo must match one SourceProtocolInfo entry, with "*" matching
// any protocol, network or content format. Connection 0 is the implicit
// connection used by peers that never call PrepareForConnection; it
// always exists and cannot be completed.
//
// Source entries whose additional info is "*" are published together with a
// DLNA tagged variant, unless the list already holds a tagged entry for the
// same format.
package connectionmanager
