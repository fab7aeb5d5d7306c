// Package rooms canonicalizes free-text room names into stable room
// keys. Hub integrations, device vendors, and users all spell rooms
// differently ("Master Bedroom", "main bedroom", "bedroom 2"); the
// dashboard needs one key per logical room so that grouping, override
// storage, and view assembly all agree on where a device lives.
package rooms

import (
	"regexp"
	"strings"
	"unicode"
)

// Other is the sentinel room for entities that cannot be placed.
const Other = "other"

// roomAliases maps known spellings and synonyms onto canonical room
// names. Keys are in collapsed underscore form; a handful of spaced
// duplicates cover inputs whose underscores were already replaced by
// spaces upstream. The table is closed: unknown names pass through
// Normalize unchanged rather than collapsing to Other.
var roomAliases = map[string]string{
	// Canonical rooms map to themselves so that stripped variants
	// ("bedroom 2" → "bedroom") resolve in a single table lookup.
	"bedroom":     "bedroom",
	"living_room": "living room",
	"living room": "living room",
	"kitchen":     "kitchen",
	"bathroom":    "bathroom",
	"garage":      "garage",
	"office":      "office",
	"hallway":     "hallway",
	"dining_room": "dining room",
	"dining room": "dining room",
	"patio":       "patio",
	"driveway":    "driveway",
	"entryway":    "entryway",
	"laundry":     "laundry",
	"basement":    "basement",
	"attic":       "attic",
	"yard":        "yard",
	"closet":      "closet",
	"pantry":      "pantry",
	"nursery":     "nursery",

	// Bedroom variants.
	"master_bedroom":  "bedroom",
	"master bedroom":  "bedroom",
	"main_bedroom":    "bedroom",
	"primary_bedroom": "bedroom",
	"guest_bedroom":   "bedroom",
	"master":          "bedroom",

	// Living room variants.
	"family_room":  "living room",
	"family room":  "living room",
	"den":          "living room",
	"lounge":       "living room",
	"sitting_room": "living room",
	"front_room":   "living room",
	"great_room":   "living room",

	// Bathroom variants.
	"powder_room":     "bathroom",
	"powder room":     "bathroom",
	"half_bath":       "bathroom",
	"half_bathroom":   "bathroom",
	"master_bathroom": "bathroom",
	"master_bath":     "bathroom",
	"main_bathroom":   "bathroom",
	"ensuite":         "bathroom",
	"en_suite":        "bathroom",
	"washroom":        "bathroom",
	"restroom":        "bathroom",

	// Outdoor variants.
	"front_patio": "patio",
	"back_patio":  "patio",
	"rear_patio":  "patio",
	"deck":        "patio",
	"porch":       "patio",
	"front_porch": "patio",
	"back_porch":  "patio",
	"balcony":     "patio",
	"terrace":     "patio",
	"backyard":    "yard",
	"back_yard":   "yard",
	"front_yard":  "yard",
	"garden":      "yard",
	"lawn":        "yard",

	// Entry variants.
	"mud_room":   "entryway",
	"mudroom":    "entryway",
	"foyer":      "entryway",
	"entry":      "entryway",
	"entrance":   "entryway",
	"front_door": "entryway",
	"vestibule":  "entryway",

	// Garage variants.
	"carport":  "garage",
	"shed":     "garage",
	"workshop": "garage",

	// Kitchen variants.
	"kitchenette":    "kitchen",
	"breakfast_nook": "kitchen",

	// Office variants.
	"study":       "office",
	"home_office": "office",
	"home office": "office",

	// Hallway variants.
	"hall":     "hallway",
	"corridor": "hallway",
	"landing":  "hallway",
	"stairs":   "hallway",

	// Dining variants.
	"dining":  "dining room",
	"dinette": "dining room",

	// Laundry variants.
	"laundry_room": "laundry",
	"laundry room": "laundry",
	"utility_room": "laundry",
	"utility":      "laundry",

	// Basement / attic variants.
	"cellar": "basement",
	"loft":   "attic",
}

var (
	numberedRoomRE = regexp.MustCompile(`^(.*?)[\s_]*\d+$`)
	possessiveRE   = regexp.MustCompile(`^(.+?)'?s_(bedroom|bathroom|office|room)$`)
)

// Normalize canonicalizes a free-text room name. It is total over all
// strings (empty input yields Other) and idempotent: normalizing an
// already-normalized name returns it unchanged. Rules are tried in
// order and the first match wins:
//
//  1. lowercase, trim, collapse whitespace to underscores
//  2. exact alias-table match
//  3. alias-table match with underscores replaced by spaces
//  4. trailing room number stripped ("bedroom 2" → "bedroom"), table retried
//  5. possessive prefix stripped ("alice's bedroom" → "bedroom")
//  6. pass-through with underscores rendered as spaces
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Other
	}
	key := strings.Join(strings.Fields(s), "_")

	if name, ok := lookupAlias(key); ok {
		return name
	}

	if m := numberedRoomRE.FindStringSubmatch(key); m != nil && m[1] != "" {
		if name, ok := lookupAlias(m[1]); ok {
			return name
		}
	}

	if m := possessiveRE.FindStringSubmatch(key); m != nil {
		if name, ok := lookupAlias(m[2]); ok {
			return name
		}
		return m[2]
	}

	return strings.ReplaceAll(key, "_", " ")
}

// lookupAlias tries the alias table with the key as-is and again with
// underscores replaced by spaces, covering key-format drift between
// callers that store underscored ids and callers that store display
// names.
func lookupAlias(key string) (string, bool) {
	if name, ok := roomAliases[key]; ok {
		return name, true
	}
	if name, ok := roomAliases[strings.ReplaceAll(key, "_", " ")]; ok {
		return name, true
	}
	return "", false
}

// NormalizeID converts a room name to its map-key form: lowercased,
// with runs of whitespace and underscores collapsed to a single
// underscore. It is applied after Normalize wherever a room is used as
// a dictionary key so that spellings which normalize to the same
// display name also collide to the same id.
func NormalizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_'
	})
	if len(parts) == 0 {
		return Other
	}
	return strings.Join(parts, "_")
}

// displayAcronyms are rendered fully uppercase instead of title case.
var displayAcronyms = map[string]string{
	"tv":   "TV",
	"ac":   "AC",
	"hvac": "HVAC",
}

// DisplayName renders a room id for the UI: underscores become spaces
// and the first rune of each word is capitalized, with known acronyms
// kept uppercase ("tv_living_room" becomes "TV Living Room").
func DisplayName(id string) string {
	words := strings.Split(strings.ReplaceAll(id, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		if up, ok := displayAcronyms[strings.ToLower(w)]; ok {
			words[i] = up
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
