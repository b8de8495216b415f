package memory

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/upnp-media/upnp-go/pkg/backend"
)

// fixtureObject is one object in a YAML fixture. Containers list their
// children inline.
type fixtureObject struct {
	ID          string            `yaml:"id"`
	Title       string            `yaml:"title"`
	Class       string            `yaml:"class"`
	Creator     string            `yaml:"creator"`
	Artist      string            `yaml:"artist"`
	Album       string            `yaml:"album"`
	Genre       string            `yaml:"genre"`
	Date        string            `yaml:"date"`
	Track       int               `yaml:"track"`
	AlbumArtURI string            `yaml:"album_art"`
	Description string            `yaml:"description"`
	Restricted  *bool             `yaml:"restricted"`
	Container   bool              `yaml:"container"`
	Resources   []fixtureResource `yaml:"resources"`
	Children    []fixtureObject   `yaml:"children"`
}

type fixtureResource struct {
	URL          string `yaml:"url"`
	ProtocolInfo string `yaml:"protocol_info"`
	Size         int64  `yaml:"size"`
	Duration     string `yaml:"duration"`
	Resolution   string `yaml:"resolution"`
	Bitrate      int    `yaml:"bitrate"`
}

// Load adds the objects of a YAML fixture below the root container:
//
//	- title: Music
//	  children:
//	    - title: Blue in Green
//	      class: object.item.audioItem.musicTrack
//	      artist: Miles Davis
//	      resources:
//	        - url: http://192.168.1.10:8200/media/17.mp3
//	          protocol_info: http-get:*:audio/mpeg:*
//	          duration: "0:05:37"
//
// An object with children, or with container: true, is a container.
func (s *Store) Load(r io.Reader) error {
	var objects []fixtureObject
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&objects); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding fixture: %w", err)
	}
	for i := range objects {
		if err := s.loadObject(&objects[i], s.root); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadObject(o *fixtureObject, parentID string) error {
	item := &backend.Item{
		ID:          o.ID,
		ParentID:    parentID,
		Title:       o.Title,
		Class:       o.Class,
		Creator:     o.Creator,
		Artist:      o.Artist,
		Album:       o.Album,
		Genre:       o.Genre,
		Date:        o.Date,
		TrackNumber: o.Track,
		AlbumArtURI: o.AlbumArtURI,
		Description: o.Description,
		Container:   o.Container || len(o.Children) > 0,
		Restricted:  true,
	}
	if o.Restricted != nil {
		item.Restricted = *o.Restricted
	}
	if item.Container {
		item.Searchable = true
	}
	if item.Title == "" {
		return fmt.Errorf("fixture object %q under %s has no title", o.ID, parentID)
	}
	for _, r := range o.Resources {
		res := backend.Resource{
			URL:          r.URL,
			ProtocolInfo: r.ProtocolInfo,
			Size:         r.Size,
			Resolution:   r.Resolution,
			Bitrate:      r.Bitrate,
		}
		if r.Duration != "" {
			d, err := backend.ParseDuration(r.Duration)
			if err != nil {
				return fmt.Errorf("fixture object %q: %w", o.Title, err)
			}
			res.Duration = d
		}
		item.Resources = append(item.Resources, res)
	}

	id, err := s.Add(item)
	if err != nil {
		return fmt.Errorf("fixture object %q: %w", o.Title, err)
	}
	for i := range o.Children {
		if err := s.loadObject(&o.Children[i], id); err != nil {
			return err
		}
	}
	return nil
}
