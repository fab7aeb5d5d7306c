// Package registry resolves entities to their device registry records
// and derives a coarse device-type classification from model,
// manufacturer, and name heuristics. Absent registry data is never an
// error: callers get nil/"unknown" and fall back to name-based
// grouping.
package registry

import (
	"github.com/homedeck/homedeck/internal/homeassistant"
)

// DeviceForEntity resolves the device registry record backing an
// entity via its device_id attribute. Returns nil when the entity map
// or device list is absent, the entity has no device_id, or no device
// matches.
func DeviceForEntity(entityID string, entities map[string]homeassistant.State, devices []homeassistant.DeviceRegistryEntry) *homeassistant.DeviceRegistryEntry {
	if entities == nil || len(devices) == 0 {
		return nil
	}

	entity, ok := entities[entityID]
	if !ok {
		return nil
	}

	deviceID := entity.DeviceID()
	if deviceID == "" {
		return nil
	}

	for i := range devices {
		if devices[i].ID == deviceID {
			return &devices[i]
		}
	}
	return nil
}

// EntitiesForDevice returns the ids of all entities whose device_id
// attribute matches the given device, in no particular order.
func EntitiesForDevice(deviceID string, entities map[string]homeassistant.State) []string {
	if deviceID == "" || entities == nil {
		return nil
	}

	var ids []string
	for id, e := range entities {
		if e.DeviceID() == deviceID {
			ids = append(ids, id)
		}
	}
	return ids
}
