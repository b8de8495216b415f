package backend

import (
	"context"
	"errors"
	"time"
)

// Backend errors.
var (
	ErrNoSuchObject       = errors.New("no such object")
	ErrNoSuchContainer    = errors.New("no such container")
	ErrSearchUnsupported  = errors.New("search not supported")
	ErrUnsupportedSort    = errors.New("unsupported sort criteria")
	ErrInvalidCriteria    = errors.New("invalid search criteria")
	ErrUnknownBackend     = errors.New("unknown backend kind")
	ErrDuplicateBackend   = errors.New("backend kind already registered")
	ErrRestrictedObject   = errors.New("restricted object")
	ErrWriteNotSupported  = errors.New("backend is read-only")
	ErrMissingParameter   = errors.New("missing backend parameter")
	ErrDuplicateObjectID  = errors.New("duplicate object id")
	ErrContainerNotEmpty  = errors.New("container not empty")
	ErrParentNotContainer = errors.New("parent is not a container")
)

// Well-known object ids.
const (
	// RootID is the id of the published root container, and the default
	// root of a backend.
	RootID = "0"

	// NoParentID is the parent id of the root container.
	NoParentID = "-1"
)

// Common UPnP classes.
const (
	ClassContainer         = "object.container"
	ClassStorageFolder     = "object.container.storageFolder"
	ClassMusicAlbum        = "object.container.album.musicAlbum"
	ClassMusicArtist       = "object.container.person.musicArtist"
	ClassItem              = "object.item"
	ClassAudioItem         = "object.item.audioItem"
	ClassMusicTrack        = "object.item.audioItem.musicTrack"
	ClassVideoItem         = "object.item.videoItem"
	ClassMovie             = "object.item.videoItem.movie"
	ClassImageItem         = "object.item.imageItem"
	ClassPhoto             = "object.item.imageItem.photo"
	ClassAudioBroadcast    = "object.item.audioItem.audioBroadcast"
	ClassPlaylistContainer = "object.container.playlistContainer"
)

// Resource is one retrievable representation of an item.
type Resource struct {
	// URL locates the content.
	URL string

	// ProtocolInfo is the four-field "protocol:network:mime:info" string.
	ProtocolInfo string

	// Size in bytes. Zero means unknown.
	Size int64

	// Duration of the media. Zero means unknown.
	Duration time.Duration

	// Resolution as "WxH". Empty means unknown.
	Resolution string

	// Bitrate in bytes per second. Zero means unknown.
	Bitrate int
}

// Item is a content object: an item or a container.
type Item struct {
	ID       string
	ParentID string
	Title    string

	// Class is the UPnP class, e.g. "object.item.audioItem.musicTrack".
	Class string

	Creator     string
	Artist      string
	Album       string
	Genre       string
	Date        string
	TrackNumber int
	AlbumArtURI string
	Description string

	Resources []Resource

	// Container marks containers. ChildCount is only meaningful for them.
	Container  bool
	ChildCount int
	Searchable bool

	// Restricted marks objects a control point may not modify.
	Restricted bool
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	c := *i
	c.Resources = append([]Resource(nil), i.Resources...)
	return &c
}

// Page is one window of a child or search listing.
type Page struct {
	// Items holds the objects in the window, in listing order.
	Items []*Item

	// Total is the number of objects in the complete listing.
	Total int
}

// SortKey orders a listing by one property.
type SortKey struct {
	// Property is a DIDL-Lite property such as "dc:title".
	Property string

	// Descending reverses the order.
	Descending bool
}

// Change reports a content tree mutation.
type Change struct {
	// ContainerID is the container whose children changed.
	ContainerID string

	// UpdateID is the container's new update id.
	UpdateID uint32
}

// Backend is a content store browsable through the ContentDirectory.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// ListChildren returns the children of containerID starting at start.
	// count zero means all remaining children. A start beyond the end yields
	// an empty page with the correct total. Unknown containers return
	// ErrNoSuchContainer.
	ListChildren(ctx context.Context, containerID string, start, count int, sort []SortKey) (Page, error)

	// GetItem returns one object. Unknown ids return ErrNoSuchObject.
	GetItem(ctx context.Context, id string) (*Item, error)
}

// Searcher is implemented by backends that support Search.
type Searcher interface {
	// Search returns objects below containerID matching query, a UPnP
	// search criteria string.
	Search(ctx context.Context, containerID, query string, start, count int, sort []SortKey) (Page, error)

	// SearchCapabilities lists the properties usable in search criteria.
	SearchCapabilities() []string
}

// Sorter is implemented by backends that advertise sort capabilities.
type Sorter interface {
	// SortCapabilities lists the properties usable as sort keys.
	SortCapabilities() []string
}

// Notifier is implemented by backends whose content changes over time.
type Notifier interface {
	// Watch registers fn to be called after each content change. fn must not
	// block.
	Watch(fn func(Change))
}

// Formats is implemented by backends that can list the protocolInfo of the
// resources they serve. The ConnectionManager publishes the union as its
// SourceProtocolInfo.
type Formats interface {
	// ProtocolInfo returns the distinct protocolInfo strings of all
	// resources.
	ProtocolInfo(ctx context.Context) ([]string, error)
}

// Writer is implemented by backends that accept object creation and
// removal from control points.
type Writer interface {
	// CreateObject adds item below containerID and returns it with its
	// assigned id.
	CreateObject(ctx context.Context, containerID string, item *Item) (*Item, error)

	// DestroyObject removes an object.
	DestroyObject(ctx context.Context, id string) error
}

// Rooted is implemented by backends whose root container is not RootID.
type Rooted interface {
	RootID() string
}

// Handle is one configured backend instance.
type Handle struct {
	// Name identifies the instance. It prefixes object ids when several
	// backends are mounted.
	Name string

	// Kind is the factory the instance was built with.
	Kind string

	// Backend is the store.
	Backend Backend

	// RootID is the backend-local id of the root container. Empty means
	// RootID.
	RootID string
}

// Root returns the backend-local id of the root container.
func (h *Handle) Root() string {
	if h.RootID == "" {
		return RootID
	}
	return h.RootID
}

// Window returns the slice of items selected by start and count, with count
// zero meaning all remaining. It is a helper for backends that hold their
// listings in memory.
func Window(items []*Item, start, count int) []*Item {
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return nil
	}
	end := len(items)
	if count > 0 && start+count < end {
		end = start + count
	}
	return items[start:end]
}
