// Package gena implements UPnP eventing (GENA) for published services.
//
// Control points subscribe to a service's event URL and receive NOTIFY
// requests carrying the values of evented state variables.
//
// # Subscription Lifecycle
//
//	Pending -> Active -> Renewed
//	   |          |         |
//	   +----------+---------+--> Expired | Cancelled
//
// A subscription is Pending until the SUBSCRIBE response has been written,
// then Active. Renewal extends the expiry and leaves the sequence counter
// alone. Subscriptions end on UNSUBSCRIBE, on expiry, after FailureThreshold
// consecutive failed deliveries, or when their device is unregistered.
//
// # Sequencing
//
// The initial event carries every evented variable with SEQ 0. Each later
// logical update produces one event with SEQ incremented by one, wrapping
// from 4294967295 to 1. Every subscriber has a bounded queue drained by its
// own delivery goroutine, so events reach a subscriber in SEQ order and a
// slow subscriber never delays state changes. When a queue is full, new
// variables are merged into the newest queued event rather than dropped.
package gena
