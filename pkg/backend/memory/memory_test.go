package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upnp-media/upnp-go/pkg/backend"
)

const musicFixture = `
- id: music
  title: Music
  children:
    - id: kob
      title: Kind of Blue
      class: object.container.album.musicAlbum
      artist: Miles Davis
      children:
        - id: t1
          title: So What
          class: object.item.audioItem.musicTrack
          artist: Miles Davis
          track: 1
          resources:
            - url: http://192.168.1.10:8200/media/1.mp3
              protocol_info: http-get:*:audio/mpeg:*
              size: 9000000
              duration: "0:09:22"
        - id: t2
          title: Freddie Freeloader
          class: object.item.audioItem.musicTrack
          artist: Miles Davis
          track: 2
        - id: t3
          title: Blue in Green
          class: object.item.audioItem.musicTrack
          artist: Miles Davis
          track: 3
- id: photos
  title: Photos
  container: true
`

func loadedStore(t *testing.T) *Store {
	t.Helper()
	s := New("Library")
	require.NoError(t, s.Load(strings.NewReader(musicFixture)))
	return s
}

func pageIDs(p backend.Page) []string {
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.ID
	}
	return out
}

func TestLoadFixture(t *testing.T) {
	s := loadedStore(t)
	assert.Equal(t, 7, s.Len())

	root, err := s.GetItem(context.Background(), backend.RootID)
	require.NoError(t, err)
	assert.Equal(t, "Library", root.Title)
	assert.Equal(t, backend.NoParentID, root.ParentID)
	assert.Equal(t, 2, root.ChildCount)

	track, err := s.GetItem(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "kob", track.ParentID)
	assert.False(t, track.Container)
	require.Len(t, track.Resources, 1)
	assert.Equal(t, 9*time.Minute+22*time.Second, track.Resources[0].Duration)

	photos, err := s.GetItem(context.Background(), "photos")
	require.NoError(t, err)
	assert.True(t, photos.Container)
	assert.Equal(t, backend.ClassContainer, photos.Class)
	assert.Zero(t, photos.ChildCount)
}

func TestLoadFixtureErrors(t *testing.T) {
	s := New("x")
	err := s.Load(strings.NewReader("- title: A\n  colour: red\n"))
	assert.Error(t, err, "unknown fields are rejected")

	err = s.Load(strings.NewReader("- id: a\n  title: A\n- id: a\n  title: B\n"))
	assert.ErrorIs(t, err, backend.ErrDuplicateObjectID)

	err = s.Load(strings.NewReader("- class: object.item\n"))
	assert.Error(t, err)

	require.NoError(t, New("x").Load(strings.NewReader("")))
}

func TestMusicContainerScenario(t *testing.T) {
	s := loadedStore(t)
	ctx := context.Background()

	page, err := s.ListChildren(ctx, "kob", 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"t1", "t2", "t3"}, pageIDs(page))

	page, err = s.ListChildren(ctx, "kob", 1, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"t2"}, pageIDs(page))

	page, err = s.ListChildren(ctx, "kob", 0, 0, []backend.SortKey{{Property: backend.PropTitle}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t3", "t2", "t1"}, pageIDs(page))
}

func TestListChildrenStartBeyondEnd(t *testing.T) {
	s := loadedStore(t)

	page, err := s.ListChildren(context.Background(), "kob", 3, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 3, page.Total)
}

func TestListChildrenErrors(t *testing.T) {
	s := loadedStore(t)
	ctx := context.Background()

	_, err := s.ListChildren(ctx, "nope", 0, 0, nil)
	assert.ErrorIs(t, err, backend.ErrNoSuchContainer)

	_, err = s.ListChildren(ctx, "t1", 0, 0, nil)
	assert.ErrorIs(t, err, backend.ErrNoSuchContainer, "items have no children")

	_, err = s.ListChildren(ctx, "kob", 0, 0, []backend.SortKey{{Property: "upnp:rating"}})
	assert.ErrorIs(t, err, backend.ErrUnsupportedSort)

	_, err = s.GetItem(ctx, "nope")
	assert.ErrorIs(t, err, backend.ErrNoSuchObject)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.ListChildren(cancelled, "kob", 0, 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch(t *testing.T) {
	s := loadedStore(t)
	ctx := context.Background()

	page, err := s.Search(ctx, backend.RootID, `upnp:class derivedfrom "object.item.audioItem"`, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, pageIDs(page))

	page, err = s.Search(ctx, backend.RootID, `upnp:artist = "Miles Davis"`, 0, 2, []backend.SortKey{{Property: backend.PropTrackNumber, Descending: true}})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total, "album container matches too")
	assert.Equal(t, []string{"t3", "t2"}, pageIDs(page))

	page, err = s.Search(ctx, "photos", "*", 0, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	_, err = s.Search(ctx, backend.RootID, `dc:title = `, 0, 0, nil)
	assert.ErrorIs(t, err, backend.ErrInvalidCriteria)

	_, err = s.Search(ctx, backend.RootID, `upnp:rating = "5"`, 0, 0, nil)
	assert.ErrorIs(t, err, backend.ErrInvalidCriteria, "unsearchable property")

	_, err = s.Search(ctx, "t1", "*", 0, 0, nil)
	assert.ErrorIs(t, err, backend.ErrNoSuchContainer)
}

func TestWatchAndUpdateIDs(t *testing.T) {
	s := loadedStore(t)

	var (
		mu      sync.Mutex
		changes []backend.Change
	)
	s.Watch(func(c backend.Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	before, err := s.UpdateID("kob")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), before)

	id, err := s.Add(&backend.Item{ParentID: "kob", Title: "All Blues", Class: backend.ClassMusicTrack})
	require.NoError(t, err)
	require.NoError(t, s.Remove("t2"))

	mu.Lock()
	assert.Equal(t, []backend.Change{
		{ContainerID: "kob", UpdateID: 4},
		{ContainerID: "kob", UpdateID: 5},
	}, changes)
	mu.Unlock()

	page, err := s.ListChildren(context.Background(), "kob", 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t3", id}, pageIDs(page))

	require.NoError(t, s.Remove("music"))
	_, err = s.GetItem(context.Background(), "t1")
	assert.ErrorIs(t, err, backend.ErrNoSuchObject, "subtree removed")
	assert.ErrorIs(t, s.Remove(backend.RootID), backend.ErrRestrictedObject)
	assert.ErrorIs(t, s.Remove("music"), backend.ErrNoSuchObject)
}

func TestAddErrors(t *testing.T) {
	s := loadedStore(t)

	_, err := s.Add(&backend.Item{ParentID: "nope", Title: "x"})
	assert.ErrorIs(t, err, backend.ErrNoSuchContainer)

	_, err = s.Add(&backend.Item{ParentID: "t1", Title: "x"})
	assert.ErrorIs(t, err, backend.ErrParentNotContainer)

	_, err = s.Add(&backend.Item{ID: "t1", ParentID: "kob", Title: "x"})
	assert.ErrorIs(t, err, backend.ErrDuplicateObjectID)
}

func TestWriter(t *testing.T) {
	s := loadedStore(t)
	ctx := context.Background()

	_, err := s.CreateObject(ctx, "photos", &backend.Item{Title: "Beach"})
	assert.ErrorIs(t, err, backend.ErrWriteNotSupported)

	s.SetWritable(true)

	_, err = s.CreateObject(ctx, "photos", &backend.Item{Title: "Beach"})
	assert.ErrorIs(t, err, backend.ErrRestrictedObject, "fixture objects default to restricted")

	created, err := s.CreateObject(ctx, backend.RootID, &backend.Item{ID: "ignored", Title: "Uploads", Container: true})
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", created.ID)
	assert.Equal(t, backend.RootID, created.ParentID)
	assert.Equal(t, backend.ClassContainer, created.Class)

	item, err := s.CreateObject(ctx, created.ID, &backend.Item{Title: "Beach", Class: backend.ClassPhoto})
	require.NoError(t, err)

	require.NoError(t, s.DestroyObject(ctx, item.ID))
	assert.ErrorIs(t, s.DestroyObject(ctx, "t1"), backend.ErrRestrictedObject)
	assert.ErrorIs(t, s.DestroyObject(ctx, "nope"), backend.ErrNoSuchObject)
}

func TestFactory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.yaml")
	require.NoError(t, os.WriteFile(path, []byte(musicFixture), 0o600))

	h, err := backend.New(Kind, "music", map[string]string{
		ParamFixture:  path,
		ParamTitle:    "My Music",
		ParamWritable: "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "music", h.Name)
	assert.Equal(t, backend.RootID, h.RootID)

	root, err := h.Backend.GetItem(context.Background(), backend.RootID)
	require.NoError(t, err)
	assert.Equal(t, "My Music", root.Title)

	_, ok := h.Backend.(backend.Searcher)
	assert.True(t, ok)

	_, err = backend.New(Kind, "bad", map[string]string{ParamWritable: "perhaps"})
	assert.Error(t, err)

	_, err = backend.New(Kind, "missing", map[string]string{ParamFixture: filepath.Join(t.TempDir(), "none.yaml")})
	assert.Error(t, err)
}

func TestFactoryRootID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.yaml")
	require.NoError(t, os.WriteFile(path, []byte(musicFixture), 0o600))

	h, err := backend.New(Kind, "music", map[string]string{
		ParamFixture:  path,
		ParamRootID:   "library",
		ParamWritable: "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "library", h.RootID)

	ctx := context.Background()
	root, err := h.Backend.GetItem(ctx, "library")
	require.NoError(t, err)
	assert.Equal(t, backend.NoParentID, root.ParentID)
	_, err = h.Backend.GetItem(ctx, backend.RootID)
	assert.ErrorIs(t, err, backend.ErrNoSuchObject)

	page, err := h.Backend.ListChildren(ctx, "library", 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"music", "photos"}, pageIDs(page))

	assert.ErrorIs(t, h.Backend.(backend.Writer).DestroyObject(ctx, "library"), backend.ErrRestrictedObject)
}

func TestProtocolInfo(t *testing.T) {
	s := loadedStore(t)
	_, err := s.Add(&backend.Item{
		ParentID: "photos",
		Title:    "Beach",
		Class:    backend.ClassPhoto,
		Resources: []backend.Resource{
			{URL: "http://192.168.1.10:8200/media/2.jpg", ProtocolInfo: "http-get:*:image/jpeg:*"},
			{URL: "http://192.168.1.10:8200/media/3.mp3", ProtocolInfo: "http-get:*:audio/mpeg:*"},
		},
	})
	require.NoError(t, err)

	got, err := s.ProtocolInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"http-get:*:audio/mpeg:*", "http-get:*:image/jpeg:*"}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.ProtocolInfo(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
