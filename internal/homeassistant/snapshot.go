package homeassistant

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Snapshot maintains the live entity map: entity id → latest State.
// It is seeded wholesale from a full-state fetch and then kept current
// from state_changed events. All other packages treat the map as
// read-only; Snapshot hands out copies, never its internal map.
type Snapshot struct {
	mu       sync.RWMutex
	entities map[string]State
	logger   *slog.Logger
}

// NewSnapshot creates an empty entity snapshot.
func NewSnapshot(logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshot{
		entities: make(map[string]State),
		logger:   logger,
	}
}

// Replace swaps in a complete set of entity states, discarding the
// previous map. Used after the initial fetch and after reconnects,
// when incremental events may have been missed.
func (s *Snapshot) Replace(states []State) {
	entities := make(map[string]State, len(states))
	for _, st := range states {
		entities[st.EntityID] = st
	}

	s.mu.Lock()
	s.entities = entities
	s.mu.Unlock()

	s.logger.Debug("entity snapshot replaced", "entities", len(states))
}

// Apply updates the snapshot from a state_changed event. Returns true
// when the snapshot changed. Non-state events and malformed payloads
// are ignored. A nil NewState means the entity was removed.
func (s *Snapshot) Apply(ev Event) bool {
	if ev.Type != "state_changed" {
		return false
	}

	var data StateChangedData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		s.logger.Debug("failed to unmarshal state_changed data", "error", err)
		return false
	}
	if data.EntityID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data.NewState == nil {
		if _, ok := s.entities[data.EntityID]; !ok {
			return false
		}
		delete(s.entities, data.EntityID)
		return true
	}

	s.entities[data.EntityID] = *data.NewState
	return true
}

// All returns a copy of the entity map.
func (s *Snapshot) All() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]State, len(s.entities))
	for id, st := range s.entities {
		out[id] = st
	}
	return out
}

// Get returns the state for an entity id.
func (s *Snapshot) Get(entityID string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.entities[entityID]
	return st, ok
}

// Len returns the number of entities in the snapshot.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}
