// Package log records the wire traffic of a media server for later
// inspection.
//
// Operational messages go through slog. This package is different: every
// SSDP datagram, SOAP exchange, GENA notification and device lifecycle
// change becomes an Event that a Logger receives. Capturing them makes it
// possible to replay what a misbehaving control point actually sent.
//
// # Sinks
//
// A server.Config takes one Logger. Combine sinks with MultiLogger:
//
//	capture, err := log.NewFileLogger("/var/log/upnp/server.ulog")
//	if err != nil {
//		return err
//	}
//	defer capture.Close()
//	cfg.ProtocolLogger = log.NewMultiLogger(
//		capture,
//		log.NewSlogAdapter(slog.Default()),
//	)
//
// # Capture files
//
// A capture file is a plain concatenation of CBOR records with integer
// keys. Reader iterates over one, optionally through a Filter; the
// "upnp-mediaserver log" command is built on it.
package log
