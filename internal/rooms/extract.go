package rooms

import (
	"strings"

	"github.com/homedeck/homedeck/internal/homeassistant"
)

// knownRooms is the substring table used to infer a room from entity
// names and ids. Multi-word names come first so "living room" wins
// before a later single-word entry could shadow it.
var knownRooms = []string{
	"living room",
	"dining room",
	"bedroom",
	"kitchen",
	"bathroom",
	"garage",
	"office",
	"hallway",
	"patio",
	"driveway",
	"entryway",
	"laundry",
	"basement",
	"attic",
	"closet",
	"pantry",
	"nursery",
	"foyer",
	"den",
	"porch",
	"deck",
	"yard",
	"balcony",
}

// Known returns the room substring table in match order. Callers must
// not mutate the returned slice.
func Known() []string {
	return knownRooms
}

// BrandWords are vendor and appliance names that frequently embed a
// room word in a product's friendly name ("Sonos Bedroom", "Dyson Pure
// Cool Living Room"). The strict extractor refuses to infer a room
// from such names, and the grouping engine prefers brand-bearing
// friendly names when labeling pattern-derived groups.
var BrandWords = []string{
	"sonos",
	"dyson",
	"hue",
	"philips",
	"nest",
	"ring",
	"tesla",
	"ecobee",
	"roomba",
	"shelly",
	"sonoff",
	"wemo",
	"kasa",
	"lutron",
	"aqara",
	"tado",
	"netatmo",
}

// FromEntity infers a room key from an entity's friendly name, then
// its object id, by substring containment against the known-room
// table. The first match is canonicalized through Normalize. Returns
// Other when nothing matches.
func FromEntity(entityID string, e homeassistant.State) string {
	name := strings.ToLower(e.FriendlyName())
	objectID := searchableObjectID(entityID)

	// "Master Bedroom Light" must land in the canonical bedroom even
	// though "master bedroom" is not in the substring table itself.
	for _, text := range []string{name, objectID} {
		if strings.Contains(text, "master") && strings.Contains(text, "bedroom") {
			return Normalize("bedroom")
		}
	}

	for _, text := range []string{name, objectID} {
		if text == "" {
			continue
		}
		for _, room := range knownRooms {
			if strings.Contains(text, room) {
				return Normalize(room)
			}
		}
	}

	return Other
}

// FromEntityStrict behaves like FromEntity but returns Other
// immediately when the entity's name contains a known brand or
// appliance word, even if a room word is also present. Use it where a
// false room match is worse than no match, such as deriving a device
// group's room from speaker or fan names.
func FromEntityStrict(entityID string, e homeassistant.State) string {
	name := strings.ToLower(e.FriendlyName())
	objectID := searchableObjectID(entityID)

	for _, text := range []string{name, objectID} {
		for _, brand := range BrandWords {
			if strings.Contains(text, brand) {
				return Other
			}
		}
	}

	return FromEntity(entityID, e)
}

// searchableObjectID lowers the object part of an entity id and turns
// underscores into spaces so multi-word rooms match ("light.living_room"
// contains "living room").
func searchableObjectID(entityID string) string {
	objectID := entityID
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		objectID = entityID[i+1:]
	}
	return strings.ReplaceAll(strings.ToLower(objectID), "_", " ")
}
