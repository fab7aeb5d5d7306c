package grouping

import "github.com/homedeck/homedeck/internal/homeassistant"

// HiddenFunc reports whether the group with the given device id has
// been hidden by a user override.
type HiddenFunc func(deviceID string) bool

// DisabledFunc reports whether an entity is disabled in the hub's
// entity registry.
type DisabledFunc func(entityID string) bool

// DetectionFunc reports whether an entity is a camera detection
// sub-entity (person, vehicle, package) that should not surface as a
// device of its own.
type DetectionFunc func(entityID string, e homeassistant.State) bool

// FilterVisible drops groups the dashboard should not render: groups
// hidden by a user override, groups whose primary entity is disabled
// in the registry, and groups fronted by a camera detection entity.
// Detection entities riding inside a camera group stay, since the
// camera is that group's primary. Any predicate may be nil, which
// disables that check. The input slice is not modified.
func FilterVisible(groups []Group, hidden HiddenFunc, disabled DisabledFunc, isDetection DetectionFunc) []Group {
	visible := make([]Group, 0, len(groups))
	for _, grp := range groups {
		if hidden != nil && hidden(grp.DeviceID) {
			continue
		}
		if disabled != nil && disabled(grp.Primary.EntityID) {
			continue
		}
		if isDetection != nil && isDetection(grp.Primary.EntityID, grp.Primary) {
			continue
		}
		visible = append(visible, grp)
	}
	return visible
}
