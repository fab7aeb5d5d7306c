// Package grouping assembles flat Home Assistant entity lists into
// device-level groups. Three passes run in order: device registry
// membership, structural naming patterns, and a singleton fallback, so
// every input entity lands in exactly one group.
package grouping

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/homedeck/homedeck/internal/homeassistant"
	"github.com/homedeck/homedeck/internal/registry"
	"github.com/homedeck/homedeck/internal/rooms"
)

// Group is one logical device and the entities that belong to it.
// DeviceID is stable across refreshes: the registry device id when the
// registry resolved the group, a pattern-derived key otherwise, or
// "single_<entityID>" for fallback singletons.
type Group struct {
	DeviceID     string
	Device       *homeassistant.DeviceRegistryEntry
	Name         string
	Manufacturer string
	Model        string
	Room         string
	Entities     []homeassistant.State
	Primary      homeassistant.State
}

// Engine runs the grouping passes. It carries only a logger; the
// grouping itself is a pure function of its inputs.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// GroupByDevice partitions entities into device groups. devices and
// all may be nil or empty; the registry pass is simply skipped then
// and the pattern passes carry the whole load. Output order follows
// the input entity order of each group's first member.
func (g *Engine) GroupByDevice(entities []homeassistant.State, devices []homeassistant.DeviceRegistryEntry, all map[string]homeassistant.State) []Group {
	processed := make(map[string]bool, len(entities))

	var groups []Group
	groups = append(groups, g.registryPass(entities, devices, all, processed)...)
	groups = append(groups, g.coverPass(entities, processed)...)
	groups = append(groups, g.tvPass(entities, processed)...)
	groups = append(groups, g.cameraPass(entities, processed)...)
	groups = append(groups, g.roomNamedPass(entities, processed)...)
	groups = append(groups, g.freeTextPass(entities, processed)...)
	groups = append(groups, g.singletonPass(entities, processed)...)

	g.logger.Debug("grouping complete",
		"entities", len(entities),
		"groups", len(groups))
	return groups
}

// registryPass groups entities whose device_id attribute resolves to
// the same device registry record. Registry membership always beats
// the name-based patterns that follow.
func (g *Engine) registryPass(entities []homeassistant.State, devices []homeassistant.DeviceRegistryEntry, all map[string]homeassistant.State, processed map[string]bool) []Group {
	var groups []Group
	for i := range entities {
		e := entities[i]
		if processed[e.EntityID] {
			continue
		}
		dev := registry.DeviceForEntity(e.EntityID, all, devices)
		if dev == nil {
			continue
		}

		var members []homeassistant.State
		for _, m := range entities[i:] {
			if processed[m.EntityID] {
				continue
			}
			d := registry.DeviceForEntity(m.EntityID, all, devices)
			if d == nil || d.ID != dev.ID {
				continue
			}
			processed[m.EntityID] = true
			members = append(members, m)
		}

		g.logger.Debug("grouped by registry",
			"device_id", dev.ID,
			"name", dev.DisplayName(),
			"entities", len(members))
		groups = append(groups, Group{
			DeviceID:     dev.ID,
			Device:       dev,
			Name:         dev.DisplayName(),
			Manufacturer: dev.Manufacturer,
			Model:        dev.Model,
			Room:         groupRoom(members, false),
			Entities:     members,
			Primary:      PrimaryEntity(members),
		})
	}
	return groups
}

// coverSuffixRE strips positional sub-entity suffixes so a blind's
// top and bottom rails share one group key.
var coverSuffixRE = regexp.MustCompile(`_(top|bottom|left|right|position|tilt)$`)

func (g *Engine) coverPass(entities []homeassistant.State, processed map[string]bool) []Group {
	var groups []Group
	for i := range entities {
		e := entities[i]
		if processed[e.EntityID] || e.Domain() != "cover" {
			continue
		}
		base := coverSuffixRE.ReplaceAllString(e.ObjectID(), "")

		var members []homeassistant.State
		for _, m := range entities[i:] {
			if processed[m.EntityID] || m.Domain() != "cover" {
				continue
			}
			if coverSuffixRE.ReplaceAllString(m.ObjectID(), "") != base {
				continue
			}
			processed[m.EntityID] = true
			members = append(members, m)
		}

		g.logger.Debug("grouped covers", "device_id", base, "entities", len(members))
		groups = append(groups, Group{
			DeviceID: base,
			Name:     rooms.DisplayName(base),
			Room:     groupRoom(members, false),
			Entities: members,
			Primary:  PrimaryEntity(members),
		})
	}
	return groups
}

// tvPass merges media players mentioning a TV in the same room under
// one tv_<room> key. Companion entities in other domains (remotes,
// backlight switches) fall through to the later passes.
func (g *Engine) tvPass(entities []homeassistant.State, processed map[string]bool) []Group {
	var groups []Group
	for i := range entities {
		e := entities[i]
		if processed[e.EntityID] || e.Domain() != "media_player" || !mentionsTV(e) {
			continue
		}
		room := rooms.FromEntity(e.EntityID, e)
		roomID := rooms.NormalizeID(room)

		var members []homeassistant.State
		for _, m := range entities[i:] {
			if processed[m.EntityID] || m.Domain() != "media_player" || !mentionsTV(m) {
				continue
			}
			if rooms.FromEntity(m.EntityID, m) != room {
				continue
			}
			processed[m.EntityID] = true
			members = append(members, m)
		}

		key := "tv_" + roomID
		g.logger.Debug("grouped tv", "device_id", key, "entities", len(members))
		groups = append(groups, Group{
			DeviceID: key,
			Name:     rooms.DisplayName(key),
			Room:     roomKey(room),
			Entities: members,
			Primary:  PrimaryEntity(members),
		})
	}
	return groups
}

func mentionsTV(e homeassistant.State) bool {
	if hasWord(strings.ToLower(e.FriendlyName()), "tv") {
		return true
	}
	for _, part := range strings.Split(e.ObjectID(), "_") {
		if part == "tv" {
			return true
		}
	}
	return false
}

// hasWord reports whether text contains w as a whole word.
func hasWord(text, w string) bool {
	for _, f := range strings.Fields(text) {
		if strings.Trim(f, ".,:;()") == w {
			return true
		}
	}
	return false
}

// cameraOverlayRE matches the overlay and toggle sub-entities some
// camera integrations expose alongside the feed entity.
var cameraOverlayRE = regexp.MustCompile(`_(?:overlay|show)_.+$`)

func (g *Engine) cameraPass(entities []homeassistant.State, processed map[string]bool) []Group {
	var groups []Group
	for i := range entities {
		e := entities[i]
		if processed[e.EntityID] {
			continue
		}
		if e.Domain() != "camera" && !isCameraSubEntity(e) {
			continue
		}
		base := cameraBase(e)

		var members []homeassistant.State
		for _, m := range entities[i:] {
			if processed[m.EntityID] {
				continue
			}
			if m.Domain() != "camera" && !isCameraSubEntity(m) {
				continue
			}
			if cameraBase(m) != base {
				continue
			}
			processed[m.EntityID] = true
			members = append(members, m)
		}

		key := "camera_" + base
		g.logger.Debug("grouped camera", "device_id", key, "entities", len(members))
		groups = append(groups, Group{
			DeviceID: key,
			Name:     rooms.DisplayName(base),
			Room:     groupRoom(members, true),
			Entities: members,
			Primary:  cameraPrimary(members),
		})
	}
	return groups
}

func isCameraSubEntity(e homeassistant.State) bool {
	obj := e.ObjectID()
	if strings.HasSuffix(obj, "_privacy_mode") || strings.HasSuffix(obj, "_status_light") {
		return true
	}
	if cameraOverlayRE.MatchString(obj) {
		return true
	}
	name := strings.ToLower(e.FriendlyName())
	return strings.Contains(name, "overlay:") ||
		strings.Contains(name, "privacy mode") ||
		strings.Contains(name, "status light")
}

// cameraBase extracts the camera's base identifier: the friendly name
// up to the first colon when present ("Front Door: Overlay Text"),
// the object id with sub-entity suffixes stripped otherwise.
func cameraBase(e homeassistant.State) string {
	if name := e.FriendlyName(); name != "" {
		if i := strings.IndexByte(name, ':'); i > 0 {
			return rooms.NormalizeID(name[:i])
		}
	}
	obj := e.ObjectID()
	obj = strings.TrimSuffix(obj, "_privacy_mode")
	obj = strings.TrimSuffix(obj, "_status_light")
	obj = cameraOverlayRE.ReplaceAllString(obj, "")
	return rooms.NormalizeID(obj)
}

// roomNamedPass groups entities whose object id is a room name, or a
// brand plus a room name, merging same-domain siblings that resolve to
// the same room ("light.living_room", "fan.dyson_bedroom") under a
// <domain>_<room> key.
func (g *Engine) roomNamedPass(entities []homeassistant.State, processed map[string]bool) []Group {
	var groups []Group
	for i := range entities {
		e := entities[i]
		if processed[e.EntityID] {
			continue
		}
		_, roomID, ok := roomNamedObjectID(e.ObjectID())
		if !ok {
			continue
		}
		domain := e.Domain()

		var members []homeassistant.State
		for _, m := range entities[i:] {
			if processed[m.EntityID] || m.Domain() != domain {
				continue
			}
			_, mr, mok := roomNamedObjectID(m.ObjectID())
			if !mok || mr != roomID {
				continue
			}
			processed[m.EntityID] = true
			members = append(members, m)
		}

		key := domain + "_" + roomID
		g.logger.Debug("grouped by room object id", "device_id", key, "entities", len(members))
		groups = append(groups, Group{
			DeviceID: key,
			Name:     roomNamedGroupName(members, key),
			Room:     roomID,
			Entities: members,
			Primary:  PrimaryEntity(members),
		})
	}
	return groups
}

// roomNamedObjectID folds an object id through room normalization
// ("master_bedroom" becomes "bedroom") and reports whether the result
// is, or ends with, a known room.
func roomNamedObjectID(objectID string) (folded, roomID string, ok bool) {
	folded = rooms.NormalizeID(rooms.Normalize(objectID))
	for _, room := range rooms.Known() {
		id := rooms.NormalizeID(room)
		if folded == id || strings.HasSuffix(folded, "_"+id) {
			return folded, id, true
		}
	}
	return "", "", false
}

// roomNamedGroupName prefers a brand-bearing friendly name ("Dyson
// Pure Cool") over the bare room label.
func roomNamedGroupName(members []homeassistant.State, key string) string {
	for _, m := range members {
		name := strings.ToLower(m.FriendlyName())
		for _, brand := range rooms.BrandWords {
			if strings.Contains(name, brand) {
				return m.FriendlyName()
			}
		}
	}
	if len(members) > 0 && members[0].FriendlyName() != "" {
		return members[0].FriendlyName()
	}
	return rooms.DisplayName(key)
}

// freeTextPass applies the ordered identifier rule table to whatever
// the structural passes left behind.
func (g *Engine) freeTextPass(entities []homeassistant.State, processed map[string]bool) []Group {
	var groups []Group
	for i := range entities {
		e := entities[i]
		if processed[e.EntityID] {
			continue
		}
		ruleName, ident := ExtractIdentifier(e)
		if ident == "" {
			continue
		}

		var members []homeassistant.State
		for _, m := range entities[i:] {
			if processed[m.EntityID] {
				continue
			}
			if _, mid := ExtractIdentifier(m); mid != ident {
				continue
			}
			processed[m.EntityID] = true
			members = append(members, m)
		}

		g.logger.Debug("grouped by identifier rule",
			"rule", ruleName,
			"device_id", ident,
			"entities", len(members))
		groups = append(groups, Group{
			DeviceID: ident,
			Name:     rooms.DisplayName(ident),
			Room:     groupRoom(members, true),
			Entities: members,
			Primary:  PrimaryEntity(members),
		})
	}
	return groups
}

// singletonPass wraps every remaining entity in its own group so the
// output always partitions the input.
func (g *Engine) singletonPass(entities []homeassistant.State, processed map[string]bool) []Group {
	var groups []Group
	for _, e := range entities {
		if processed[e.EntityID] {
			continue
		}
		processed[e.EntityID] = true
		groups = append(groups, Group{
			DeviceID: "single_" + e.EntityID,
			Name:     e.Name(),
			Room:     groupRoom([]homeassistant.State{e}, false),
			Entities: []homeassistant.State{e},
			Primary:  e,
		})
	}
	return groups
}

// groupRoom derives a group's room key from its members' names and
// ids, first match wins. strict refuses brand-word names so a "Sonos
// Bedroom" speaker stays unassigned instead of landing in the bedroom.
func groupRoom(members []homeassistant.State, strict bool) string {
	for _, m := range members {
		var r string
		if strict {
			r = rooms.FromEntityStrict(m.EntityID, m)
		} else {
			r = rooms.FromEntity(m.EntityID, m)
		}
		if r != rooms.Other {
			return rooms.NormalizeID(r)
		}
	}
	return rooms.Other
}

func roomKey(room string) string {
	if room == "" || room == rooms.Other {
		return rooms.Other
	}
	return rooms.NormalizeID(room)
}
