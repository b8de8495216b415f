// Package contentdirectory implements the ContentDirectory:1 service on top
// of one or more content backends.
//
// # Object ids
//
// With a single backend, object ids are the backend's own ids and "0" is
// the backend's root. With several backends the service publishes a
// virtual root "0" whose children are the backend roots, and every other
// id has the form "name$id", where name is the backend's configured name:
//
//	0                  virtual root
//	music$0            root container of backend "music"
//	music$kob          object "kob" of backend "music"
//
// # Update ids
//
// Every backend change increments SystemUpdateID immediately, so
// GetSystemUpdateID and the UpdateID output of Browse and Search always
// reflect the latest state. Evented state (SystemUpdateID and
// ContainerUpdateIDs) is moderated: changes within
// Config.ModerationInterval are coalesced into a single update and thus a
// single event to subscribers.
//
// # Faults
//
// Backend errors map onto ContentDirectory error codes:
//
//	ErrNoSuchObject                  701
//	ErrNoSuchContainer               710 (701 for Browse)
//	ErrInvalidCriteria, unsupported  708
//	ErrUnsupportedSort               709
//	ErrRestrictedObject, read-only   711
//
// Any other backend error is reported as 501 Action Failed.
package contentdirectory
