package grouping

import (
	"regexp"
	"strings"

	"github.com/homedeck/homedeck/internal/homeassistant"
	"github.com/homedeck/homedeck/internal/rooms"
)

// GroupBy controls how an identifier rule's extractions collapse into
// group keys.
type GroupBy int

const (
	// GroupByBase folds room words and vendor suffixes out of the
	// extraction so every match of the rule lands in one shared group.
	GroupByBase GroupBy = iota
	// GroupByDevice keeps each distinct extraction as its own group,
	// so two speakers named after different rooms stay separate.
	GroupByDevice
)

// ruleSource selects which part of the entity a rule matches against.
type ruleSource int

const (
	sourceName ruleSource = iota
	sourceObjectID
)

// IdentifierRule extracts a device identifier from an entity's
// friendly name or object id. Rules are tried in order; the first
// match wins.
type IdentifierRule struct {
	Name    string
	GroupBy GroupBy

	source ruleSource
	re     *regexp.Regexp
	build  func(match []string) string
}

// IdentifierRules is the ordered free-text rule table. More specific
// product patterns come before the generic suffix rules so a Tesla
// Wall Connector's voltage sensor is claimed as a charger entity, not
// a bare "_voltage" sibling.
var IdentifierRules = []IdentifierRule{
	{
		Name:    "tesla_wall_connector",
		GroupBy: GroupByBase,
		source:  sourceName,
		re:      regexp.MustCompile(`(?i)\btesla wall connector\b`),
		build:   func([]string) string { return "tesla_wall_connector" },
	},
	{
		Name:    "dyson_fan",
		GroupBy: GroupByBase,
		source:  sourceName,
		re:      regexp.MustCompile(`(?i)\bdyson\b`),
		build:   func([]string) string { return "dyson" },
	},
	{
		Name:    "sonos_speaker",
		GroupBy: GroupByDevice,
		source:  sourceName,
		re:      regexp.MustCompile(`(?i)\bsonos\b\s*(.*)$`),
		build: func(m []string) string {
			return joinIdent("sonos", m[1])
		},
	},
	{
		Name:    "hue_light",
		GroupBy: GroupByDevice,
		source:  sourceName,
		re:      regexp.MustCompile(`(?i)\bhue\b\s+(.+)$`),
		build: func(m []string) string {
			return joinIdent("hue", m[1])
		},
	},
	{
		Name:    "doorbell",
		GroupBy: GroupByDevice,
		source:  sourceName,
		re:      regexp.MustCompile(`(?i)^(.+?)\s+doorbell(?:\s+(?:gen\s*\d+|\d+(?:st|nd|rd|th)?\s+gen))?\b`),
		build: func(m []string) string {
			return joinIdent("doorbell", m[1])
		},
	},
	{
		Name:    "tv_suffix",
		GroupBy: GroupByDevice,
		source:  sourceName,
		re:      regexp.MustCompile(`(?i)^(.+?)\s+tv$`),
		build: func(m []string) string {
			return joinIdent("tv", m[1])
		},
	},
	{
		Name:    "tv_prefix",
		GroupBy: GroupByDevice,
		source:  sourceName,
		re:      regexp.MustCompile(`(?i)^tv\s+(.+)$`),
		build: func(m []string) string {
			return joinIdent("tv", m[1])
		},
	},
	{
		Name:    "blinds_suffix",
		GroupBy: GroupByDevice,
		source:  sourceName,
		re:      regexp.MustCompile(`(?i)^(.+?)\s+blinds$`),
		build: func(m []string) string {
			return joinIdent("blinds", m[1])
		},
	},
	{
		Name:    "blinds_prefix",
		GroupBy: GroupByDevice,
		source:  sourceName,
		re:      regexp.MustCompile(`(?i)^blinds\s+(.+)$`),
		build: func(m []string) string {
			return joinIdent("blinds", m[1])
		},
	},
	{
		Name:    "numbered_sibling",
		GroupBy: GroupByDevice,
		source:  sourceObjectID,
		re:      regexp.MustCompile(`^(.+)_\d+$`),
		build:   func(m []string) string { return m[1] },
	},
	{
		Name:    "attribute_sibling",
		GroupBy: GroupByDevice,
		source:  sourceObjectID,
		re:      regexp.MustCompile(`^(.+)_(?:temperature|humidity|battery|pressure|illuminance|power|energy|voltage|current|signal_strength|link_quality)$`),
		build:   func(m []string) string { return m[1] },
	},
}

// Extract applies the rule to one entity, returning the normalized
// group identifier or "" when the rule does not match.
func (r IdentifierRule) Extract(e homeassistant.State) string {
	var text string
	switch r.source {
	case sourceName:
		text = e.FriendlyName()
	case sourceObjectID:
		text = e.ObjectID()
	}
	if text == "" {
		return ""
	}

	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}

	ident := r.build(m)
	if r.GroupBy == GroupByBase {
		ident = stripRoomWords(ident)
	}
	return rooms.NormalizeID(ident)
}

// ExtractIdentifier runs the ordered rule table against an entity and
// returns the name of the first matching rule and its identifier.
func ExtractIdentifier(e homeassistant.State) (rule, ident string) {
	for _, r := range IdentifierRules {
		if id := r.Extract(e); id != "" {
			return r.Name, id
		}
	}
	return "", ""
}

// joinIdent glues a prefix and a free-text remainder into one
// identifier, tolerating an empty remainder ("Sonos" with no room).
func joinIdent(prefix, rest string) string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return prefix
	}
	return prefix + " " + rest
}

// stripRoomWords removes room names from an identifier so base-grouped
// rules collapse "Dyson Bedroom" and "Dyson Living Room" together.
func stripRoomWords(s string) string {
	lower := strings.ToLower(s)
	for _, room := range rooms.Known() {
		lower = strings.ReplaceAll(lower, room, " ")
	}
	trimmed := strings.Join(strings.Fields(lower), " ")
	if trimmed == "" {
		return s
	}
	return trimmed
}
