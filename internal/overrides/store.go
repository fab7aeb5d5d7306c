package overrides

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/homedeck/homedeck/internal/rooms"
)

const (
	storageKey = "device_overrides"

	// SchemaVersion is bumped whenever the persisted record layout
	// changes. Records with an older version run through the store's
	// migration hook on load.
	SchemaVersion = 2

	defaultFlushDelay = 500 * time.Millisecond
)

// Override holds the user's customizations for one device group. Zero
// values mean "no override"; a record where every field is zero is
// removed from the store entirely.
type Override struct {
	Room         string `json:"room,omitempty"`
	FriendlyName string `json:"friendlyName,omitempty"`
	Hidden       bool   `json:"hidden,omitempty"`
}

func (o Override) isEmpty() bool {
	return o.Room == "" && o.FriendlyName == "" && !o.Hidden
}

// Update is a partial edit: nil fields leave the stored value alone,
// non-nil fields replace it. Pointing a field at its zero value clears
// that override.
type Update struct {
	Room         *string
	FriendlyName *string
	Hidden       *bool
}

// payload is the persisted record shape.
type payload struct {
	SchemaVersion int                 `json:"schemaVersion"`
	Devices       map[string]Override `json:"devices"`
}

// MigrateFunc upgrades a payload written by an older schema version.
// It receives the stored version and entries and returns the entries
// in current form.
type MigrateFunc func(version int, devices map[string]Override) map[string]Override

// Store keeps overrides in memory and flushes them to a Backend after
// a short debounce, so rapid consecutive edits produce one write. All
// methods are safe for concurrent use.
type Store struct {
	backend Backend
	logger  *slog.Logger
	migrate MigrateFunc

	mu          sync.Mutex
	entries     map[string]Override
	lastFlushed string
	flushDelay  time.Duration
	timer       *time.Timer
}

// Option configures a Store.
type Option func(*Store)

// WithMigrate installs the schema migration hook applied when a
// loaded payload predates SchemaVersion.
func WithMigrate(fn MigrateFunc) Option {
	return func(s *Store) { s.migrate = fn }
}

// withFlushDelay shortens the debounce window in tests.
func withFlushDelay(d time.Duration) Option {
	return func(s *Store) { s.flushDelay = d }
}

// NewStore creates a Store over the given backend. Call Open before
// use to load the persisted record.
func NewStore(backend Backend, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend:    backend,
		logger:     logger,
		entries:    make(map[string]Override),
		flushDelay: defaultFlushDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the persisted record. A missing record yields an empty
// store; a malformed one is logged and discarded rather than blocking
// startup.
func (s *Store) Open(ctx context.Context) error {
	raw, err := s.backend.GetItem(ctx, storageKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw == "" {
		s.entries = make(map[string]Override)
		s.lastFlushed = ""
		return nil
	}

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("discarding malformed override record", "error", err)
		s.entries = make(map[string]Override)
		s.lastFlushed = ""
		return nil
	}
	if p.Devices == nil {
		p.Devices = make(map[string]Override)
	}

	if p.SchemaVersion < SchemaVersion && s.migrate != nil {
		s.logger.Info("migrating override record",
			"from", p.SchemaVersion, "to", SchemaVersion)
		p.Devices = s.migrate(p.SchemaVersion, p.Devices)
		// Force the next flush to persist the migrated form.
		s.lastFlushed = ""
	} else {
		s.lastFlushed = raw
	}

	s.entries = p.Devices
	return nil
}

// Set applies a partial update to a device's override record. Room
// values are canonicalized on write. A record left with no overrides
// is deleted. The change is flushed after the debounce window.
func (s *Store) Set(deviceID string, u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.entries[deviceID]
	if u.Room != nil {
		if *u.Room == "" {
			o.Room = ""
		} else {
			o.Room = rooms.NormalizeID(rooms.Normalize(*u.Room))
		}
	}
	if u.FriendlyName != nil {
		o.FriendlyName = *u.FriendlyName
	}
	if u.Hidden != nil {
		o.Hidden = *u.Hidden
	}

	if o.isEmpty() {
		delete(s.entries, deviceID)
	} else {
		s.entries[deviceID] = o
	}
	s.scheduleFlushLocked()
}

// Remove deletes a device's override record entirely.
func (s *Store) Remove(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[deviceID]; !ok {
		return
	}
	delete(s.entries, deviceID)
	s.scheduleFlushLocked()
}

// Get returns the override record for a device, if any.
func (s *Store) Get(deviceID string) (Override, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.entries[deviceID]
	return o, ok
}

// All returns a copy of every override record, keyed by device id.
func (s *Store) All() map[string]Override {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Override, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Hidden reports whether a device has been hidden by override.
func (s *Store) Hidden(deviceID string) bool {
	o, ok := s.Get(deviceID)
	return ok && o.Hidden
}

// EffectiveRoom resolves a device's room: the override wins, then the
// derived default, then Other. The result is always a canonical room
// key.
func (s *Store) EffectiveRoom(deviceID, defaultRoom string) string {
	if o, ok := s.Get(deviceID); ok && o.Room != "" {
		return o.Room
	}
	if defaultRoom == "" {
		return rooms.Other
	}
	return rooms.NormalizeID(rooms.Normalize(defaultRoom))
}

// EffectiveName resolves a device's display name: the override wins,
// then the derived default, then the device id itself.
func (s *Store) EffectiveName(deviceID, defaultName string) string {
	if o, ok := s.Get(deviceID); ok && o.FriendlyName != "" {
		return o.FriendlyName
	}
	if defaultName != "" {
		return defaultName
	}
	return deviceID
}

// scheduleFlushLocked arms the debounce timer, replacing any pending
// one so the window restarts on every edit. Caller holds s.mu.
func (s *Store) scheduleFlushLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.flushDelay, func() {
		if err := s.Flush(context.Background()); err != nil {
			s.logger.Error("override flush failed", "error", err)
		}
	})
}

// Flush serializes the current entries and writes them to the backend
// immediately. Writing is skipped when nothing changed since the last
// flush.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	raw, err := json.Marshal(payload{
		SchemaVersion: SchemaVersion,
		Devices:       s.entries,
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	serialized := string(raw)
	if serialized == s.lastFlushed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.backend.SetItem(ctx, storageKey, serialized); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastFlushed = serialized
	s.mu.Unlock()

	s.logger.Debug("flushed overrides", "bytes", len(serialized))
	return nil
}

// Close stops any pending debounce timer and performs a final flush.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	return s.Flush(ctx)
}
