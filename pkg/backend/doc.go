// Package backend defines the contract between the ContentDirectory service
// and the content stores that supply its objects.
//
// A store implements Backend for browsing and may implement Searcher,
// Sorter, Notifier and Writer for the optional capabilities; the
// ContentDirectory discovers these by type assertion. Stores are built by
// kind through the factory registry:
//
//	backend.MustRegister("memory", memory.Factory)
//	h, err := backend.New("memory", "music", map[string]string{"fixture": "music.yaml"})
//
// The package also carries the shared pieces stores need to answer
// requests: sort criteria parsing and ordering, search criteria parsing and
// matching, and DIDL-Lite property access.
package backend
