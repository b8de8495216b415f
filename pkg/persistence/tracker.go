package persistence

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSaveDelay is how long a Tracker batches changes before writing.
const DefaultSaveDelay = 2 * time.Second

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// SaveDelay batches frequent changes into one write. Zero uses
	// DefaultSaveDelay; negative writes every change immediately.
	SaveDelay time.Duration

	// Logger is used for operational logging. Nil disables logging.
	Logger *slog.Logger
}

// Tracker holds the server state in memory and writes it back to its
// store after changes.
type Tracker struct {
	store  *StateStore
	config TrackerConfig
	logger *slog.Logger

	// flushMu keeps writes in snapshot order.
	flushMu sync.Mutex

	mu    sync.Mutex
	state ServerState
	timer *time.Timer
	dirty bool
}

// OpenTracker loads the state held by store. A missing file yields an
// empty state.
func OpenTracker(store *StateStore, config TrackerConfig) (*Tracker, error) {
	if config.SaveDelay == 0 {
		config.SaveDelay = DefaultSaveDelay
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	loaded, err := store.Load()
	if err != nil {
		return nil, err
	}
	t := &Tracker{store: store, config: config, logger: logger}
	if loaded != nil {
		t.state = *loaded
	}
	if t.state.Devices == nil {
		t.state.Devices = make(map[string]string)
	}
	return t, nil
}

// UDN returns the UDN recorded for a device name, assigning and saving a
// new one on first use.
func (t *Tracker) UDN(name string) (string, error) {
	t.mu.Lock()
	if udn, ok := t.state.Devices[name]; ok {
		t.mu.Unlock()
		return udn, nil
	}
	udn := "uuid:" + uuid.New().String()
	t.state.Devices[name] = udn
	t.dirty = true
	t.mu.Unlock()

	t.logger.Info("assigned device UDN", "device", name, "udn", udn)
	return udn, t.Flush()
}

// SystemUpdateID returns the recorded system update id.
func (t *Tracker) SystemUpdateID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.SystemUpdateID
}

// SetSystemUpdateID records a new system update id. The write is deferred
// by the save delay.
func (t *Tracker) SetSystemUpdateID(id uint32) {
	t.mu.Lock()
	if id == t.state.SystemUpdateID {
		t.mu.Unlock()
		return
	}
	t.state.SystemUpdateID = id
	t.dirty = true
	if t.config.SaveDelay < 0 {
		t.mu.Unlock()
		t.save()
		return
	}
	if t.timer == nil {
		t.timer = time.AfterFunc(t.config.SaveDelay, t.save)
	}
	t.mu.Unlock()
}

func (t *Tracker) save() {
	if err := t.Flush(); err != nil {
		t.logger.Error("saving server state", "path", t.store.Path(), "error", err)
	}
}

// Flush writes pending changes now.
func (t *Tracker) Flush() error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if !t.dirty {
		t.mu.Unlock()
		return nil
	}
	snapshot := t.state
	snapshot.SavedAt = time.Time{}
	snapshot.Devices = make(map[string]string, len(t.state.Devices))
	for k, v := range t.state.Devices {
		snapshot.Devices[k] = v
	}
	t.dirty = false
	t.mu.Unlock()

	if err := t.store.Save(&snapshot); err != nil {
		t.mu.Lock()
		t.dirty = true
		t.mu.Unlock()
		return err
	}
	return nil
}
