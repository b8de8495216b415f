// Package persistence keeps media server state across restarts.
//
// The state file is JSON and holds the UDN assigned to each configured
// device and the last ContentDirectory SystemUpdateID. Content metadata is
// never persisted; backends supply it on every call.
package persistence
