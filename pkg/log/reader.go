package log

import (
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture records. An event passes when it satisfies every
// field that is set; zero fields accept anything.
type Filter struct {
	ExchangeID string
	Direction  *Direction
	Protocol   *Protocol
	Category   *Category

	// TimeStart and TimeEnd bound the half-open interval [TimeStart, TimeEnd).
	TimeStart *time.Time
	TimeEnd   *time.Time

	// UDN is the local device the event belongs to.
	UDN string

	// SID keeps only GENA deliveries for that subscription.
	SID string
}

func (f *Filter) matches(event Event) bool {
	if f.ExchangeID != "" && event.ExchangeID != f.ExchangeID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Protocol != nil && event.Protocol != *f.Protocol {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.UDN != "" && event.UDN != f.UDN {
		return false
	}
	if f.SID != "" && (event.Notify == nil || event.Notify.SID != f.SID) {
		return false
	}
	return true
}

// Reader iterates over the records of a capture file without loading it.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens the capture file at path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the capture file at path, yielding only records
// that pass filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next yields the following matching record, or io.EOF at the end of the
// file.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close releases the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
