package homeassistant

import (
	"strings"
	"time"
)

// State represents an entity state snapshot from Home Assistant. States
// are immutable once received; the dashboard only ever reads them and
// replaces whole snapshots, never patches fields in place.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Domain returns the entity id's domain prefix ("light.kitchen" →
// "light"). Returns an empty string for malformed ids.
func (s State) Domain() string {
	if i := strings.IndexByte(s.EntityID, '.'); i >= 0 {
		return s.EntityID[:i]
	}
	return ""
}

// ObjectID returns the entity id's object part ("light.kitchen" →
// "kitchen"). Returns the whole id for malformed ids.
func (s State) ObjectID() string {
	if i := strings.IndexByte(s.EntityID, '.'); i >= 0 {
		return s.EntityID[i+1:]
	}
	return s.EntityID
}

// FriendlyName returns the friendly_name attribute, or an empty string
// when absent or not a string.
func (s State) FriendlyName() string {
	name, _ := s.Attributes["friendly_name"].(string)
	return name
}

// Name returns the friendly name when set, else the entity id.
func (s State) Name() string {
	if name := s.FriendlyName(); name != "" {
		return name
	}
	return s.EntityID
}

// DeviceID returns the device_id attribute linking this entity to a
// device registry record, or an empty string when the entity is not
// registry-backed.
func (s State) DeviceID() string {
	id, _ := s.Attributes["device_id"].(string)
	return id
}

// SupportedFeatures returns the supported_features attribute bitmask.
// JSON numbers decode as float64; any other shape yields zero.
func (s State) SupportedFeatures() int {
	switch v := s.Attributes["supported_features"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Area represents a Home Assistant area registry record.
type Area struct {
	AreaID  string   `json:"area_id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// DeviceRegistryEntry represents one physical product in the Home
// Assistant device registry. Zero or more entities reference a device
// via their device_id attribute.
type DeviceRegistryEntry struct {
	ID           string     `json:"id"`
	AreaID       string     `json:"area_id"`
	Manufacturer string     `json:"manufacturer"`
	Model        string     `json:"model"`
	Name         string     `json:"name"`
	NameByUser   string     `json:"name_by_user"`
	SerialNumber string     `json:"serial_number"`
	SWVersion    string     `json:"sw_version"`
	HWVersion    string     `json:"hw_version"`
	Identifiers  [][]string `json:"identifiers"`
	DisabledBy   string     `json:"disabled_by"`
}

// DisplayName returns the user-assigned name when present, else the
// integration-supplied name, else the device id.
func (d DeviceRegistryEntry) DisplayName() string {
	if d.NameByUser != "" {
		return d.NameByUser
	}
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// IsDisabled reports whether the device is disabled in Home Assistant.
func (d DeviceRegistryEntry) IsDisabled() bool {
	return d.DisabledBy != ""
}

// EntityRegistryEntry represents an entity from the entity registry.
type EntityRegistryEntry struct {
	EntityID     string `json:"entity_id"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	AreaID       string `json:"area_id"`
	DeviceID     string `json:"device_id"`
	Platform     string `json:"platform"`
	DisabledBy   string `json:"disabled_by"`
}

// IsDisabled reports whether the entity is disabled in Home Assistant.
func (e EntityRegistryEntry) IsDisabled() bool {
	return e.DisabledBy != ""
}
