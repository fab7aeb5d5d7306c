// Package dashboard assembles the room-organized device view the web
// layer serves: entities are grouped into devices, user overrides are
// layered on top, hidden and detection-only groups are filtered out,
// and the result is bucketed by room.
package dashboard

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/homedeck/homedeck/internal/discovery"
	"github.com/homedeck/homedeck/internal/events"
	"github.com/homedeck/homedeck/internal/grouping"
	"github.com/homedeck/homedeck/internal/homeassistant"
	"github.com/homedeck/homedeck/internal/overrides"
	"github.com/homedeck/homedeck/internal/registry"
	"github.com/homedeck/homedeck/internal/rooms"
)

// EntityView is one entity's state as rendered to clients.
type EntityView struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name"`
	State    string `json:"state"`
}

// DeviceView is one visible device group.
type DeviceView struct {
	DeviceID     string       `json:"deviceId"`
	Name         string       `json:"name"`
	Room         string       `json:"room"`
	Type         string       `json:"type"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	Model        string       `json:"model,omitempty"`
	Primary      EntityView   `json:"primary"`
	Entities     []EntityView `json:"entities"`
}

// RoomView is one room and its devices, ordered for display.
type RoomView struct {
	RoomID  string       `json:"roomId"`
	Name    string       `json:"name"`
	Devices []DeviceView `json:"devices"`
}

// View is one complete refresh result.
type View struct {
	GeneratedAt time.Time    `json:"generatedAt"`
	Rooms       []RoomView   `json:"rooms"`
	NewDevices  []DeviceView `json:"newDevices"`
}

// Service runs refresh cycles and holds the latest view. All methods
// are safe for concurrent use.
type Service struct {
	logger   *slog.Logger
	engine   *grouping.Engine
	store    *overrides.Store
	detector *discovery.Detector
	bus      *events.Bus

	mu       sync.RWMutex
	devices  []homeassistant.DeviceRegistryEntry
	areas    map[string]string
	disabled map[string]bool
	view     View
}

// NewService wires the refresh pipeline. bus may be nil.
func NewService(engine *grouping.Engine, store *overrides.Store, detector *discovery.Detector, bus *events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:   logger,
		engine:   engine,
		store:    store,
		detector: detector,
		bus:      bus,
		areas:    make(map[string]string),
	}
}

// SetRegistries installs the device and area registries used by
// subsequent refreshes. Either slice may be nil when the hub did not
// provide registry data.
func (s *Service) SetRegistries(devices []homeassistant.DeviceRegistryEntry, areas []homeassistant.Area) {
	areaNames := make(map[string]string, len(areas))
	for _, a := range areas {
		areaNames[a.AreaID] = a.Name
	}

	s.mu.Lock()
	s.devices = devices
	s.areas = areaNames
	s.mu.Unlock()
}

// SetEntityRegistry installs the hub's entity registry. Entities
// disabled there are excluded from the view on subsequent refreshes.
func (s *Service) SetEntityRegistry(entries []homeassistant.EntityRegistryEntry) {
	disabled := make(map[string]bool)
	for _, e := range entries {
		if e.IsDisabled() {
			disabled[e.EntityID] = true
		}
	}

	s.mu.Lock()
	s.disabled = disabled
	s.mu.Unlock()
}

// Refresh regroups the full entity snapshot and rebuilds the view.
func (s *Service) Refresh(all map[string]homeassistant.State) View {
	start := time.Now()

	entities := make([]homeassistant.State, 0, len(all))
	for _, e := range all {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].EntityID < entities[j].EntityID
	})

	s.mu.RLock()
	devices := s.devices
	areaNames := s.areas
	disabled := s.disabled
	s.mu.RUnlock()

	groups := s.engine.GroupByDevice(entities, devices, all)

	// Layer registry areas and user overrides over the derived rooms
	// before anything downstream looks at them.
	for i := range groups {
		g := &groups[i]
		defaultRoom := g.Room
		if g.Device != nil && g.Device.AreaID != "" {
			if name, ok := areaNames[g.Device.AreaID]; ok && name != "" {
				defaultRoom = name
			}
		}
		g.Room = s.store.EffectiveRoom(g.DeviceID, defaultRoom)
		g.Name = s.store.EffectiveName(g.DeviceID, g.Name)
	}

	for _, g := range s.detector.Scan(groups) {
		s.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceDiscovery,
			Kind:      events.KindNewDevice,
			Data: map[string]any{
				"device_id": g.DeviceID,
				"name":      g.Name,
			},
		})
	}

	isDisabled := func(entityID string) bool { return disabled[entityID] }
	visible := grouping.FilterVisible(groups, s.store.Hidden, isDisabled, isDetectionEntity)

	byRoom := make(map[string][]DeviceView)
	for _, g := range visible {
		byRoom[g.Room] = append(byRoom[g.Room], s.deviceView(g, all))
	}

	roomViews := make([]RoomView, 0, len(byRoom))
	for id, devs := range byRoom {
		sort.Slice(devs, func(i, j int) bool { return devs[i].Name < devs[j].Name })
		roomViews = append(roomViews, RoomView{
			RoomID:  id,
			Name:    rooms.DisplayName(id),
			Devices: devs,
		})
	}
	sort.Slice(roomViews, func(i, j int) bool {
		// Other always sorts last.
		if roomViews[i].RoomID == rooms.Other {
			return false
		}
		if roomViews[j].RoomID == rooms.Other {
			return true
		}
		return roomViews[i].Name < roomViews[j].Name
	})

	roomsByID := make(map[string]string, len(groups))
	for _, g := range groups {
		roomsByID[g.DeviceID] = g.Room
	}

	// A pending device that has since been given a room needs no
	// prompt anymore.
	newDevices := make([]DeviceView, 0)
	for _, g := range s.detector.NewDevices() {
		if room, ok := roomsByID[g.DeviceID]; ok && room != "" && room != rooms.Other {
			s.detector.Dismiss(g.DeviceID)
			continue
		}
		newDevices = append(newDevices, s.deviceView(g, all))
	}

	view := View{
		GeneratedAt: time.Now(),
		Rooms:       roomViews,
		NewDevices:  newDevices,
	}

	s.mu.Lock()
	s.view = view
	s.mu.Unlock()

	elapsed := time.Since(start)
	s.logger.Debug("refresh complete",
		"entities", len(entities),
		"groups", len(groups),
		"visible", len(visible),
		"rooms", len(roomViews),
		"elapsed", elapsed)
	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceDashboard,
		Kind:      events.KindRefreshComplete,
		Data: map[string]any{
			"entities":   len(entities),
			"groups":     len(groups),
			"rooms":      len(roomViews),
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})

	return view
}

// View returns the most recent refresh result.
func (s *Service) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

func (s *Service) deviceView(g grouping.Group, all map[string]homeassistant.State) DeviceView {
	entities := make([]EntityView, len(g.Entities))
	for i, e := range g.Entities {
		entities[i] = EntityView{
			EntityID: e.EntityID,
			Name:     e.Name(),
			State:    e.State,
		}
	}

	return DeviceView{
		DeviceID:     g.DeviceID,
		Name:         g.Name,
		Room:         g.Room,
		Type:         registry.DeviceType(g.Device, all),
		Manufacturer: g.Manufacturer,
		Model:        g.Model,
		Primary: EntityView{
			EntityID: g.Primary.EntityID,
			Name:     g.Primary.Name(),
			State:    g.Primary.State,
		},
		Entities: entities,
	}
}

// isDetectionEntity recognizes the binary sensors camera integrations
// expose per detection class. Alone they are not devices worth a card;
// inside a camera group they ride along untouched.
func isDetectionEntity(entityID string, e homeassistant.State) bool {
	if e.Domain() != "binary_sensor" {
		return false
	}
	objectID := e.ObjectID()
	for _, class := range []string{"_person", "_vehicle", "_package", "_animal", "_pet"} {
		if strings.HasSuffix(objectID, class) {
			return true
		}
	}
	return false
}
