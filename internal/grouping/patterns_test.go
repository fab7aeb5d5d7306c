package grouping

import (
	"testing"

	"github.com/homedeck/homedeck/internal/homeassistant"
)

func TestExtractIdentifier(t *testing.T) {
	tests := []struct {
		name      string
		entityID  string
		friendly  string
		wantRule  string
		wantIdent string
	}{
		{
			name:      "tesla wall connector collapses attribute suffixes",
			entityID:  "sensor.wall_connector_voltage",
			friendly:  "Tesla Wall Connector Voltage",
			wantRule:  "tesla_wall_connector",
			wantIdent: "tesla_wall_connector",
		},
		{
			name:      "dyson collapses room words",
			entityID:  "fan.pure_cool",
			friendly:  "Dyson Bedroom",
			wantRule:  "dyson_fan",
			wantIdent: "dyson",
		},
		{
			name:      "sonos keeps its qualifier",
			entityID:  "media_player.speaker",
			friendly:  "Sonos Bedroom",
			wantRule:  "sonos_speaker",
			wantIdent: "sonos_bedroom",
		},
		{
			name:      "bare sonos",
			entityID:  "media_player.speaker",
			friendly:  "Sonos",
			wantRule:  "sonos_speaker",
			wantIdent: "sonos",
		},
		{
			name:      "hue light keeps its qualifier",
			entityID:  "light.bulb",
			friendly:  "Hue Color Lamp 1",
			wantRule:  "hue_light",
			wantIdent: "hue_color_lamp_1",
		},
		{
			name:      "doorbell with generation suffix",
			entityID:  "binary_sensor.ding",
			friendly:  "Front Doorbell Gen 2",
			wantRule:  "doorbell",
			wantIdent: "doorbell_front",
		},
		{
			name:      "tv suffix",
			entityID:  "media_player.display",
			friendly:  "Office TV",
			wantRule:  "tv_suffix",
			wantIdent: "tv_office",
		},
		{
			name:      "tv prefix",
			entityID:  "media_player.display",
			friendly:  "TV Upstairs",
			wantRule:  "tv_prefix",
			wantIdent: "tv_upstairs",
		},
		{
			name:      "blinds suffix",
			entityID:  "cover.shade",
			friendly:  "Kitchen Blinds",
			wantRule:  "blinds_suffix",
			wantIdent: "blinds_kitchen",
		},
		{
			name:      "numbered sibling by object id",
			entityID:  "light.lamp_2",
			friendly:  "Lamp Two",
			wantRule:  "numbered_sibling",
			wantIdent: "lamp",
		},
		{
			name:      "attribute sibling by object id",
			entityID:  "sensor.desk_sensor_battery",
			friendly:  "",
			wantRule:  "attribute_sibling",
			wantIdent: "desk_sensor",
		},
		{
			name:      "no rule matches",
			entityID:  "sensor.pollen",
			friendly:  "Pollen Count",
			wantRule:  "",
			wantIdent: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entity(tt.entityID, tt.friendly)
			rule, ident := ExtractIdentifier(e)
			if rule != tt.wantRule || ident != tt.wantIdent {
				t.Errorf("ExtractIdentifier(%s %q) = (%q, %q), want (%q, %q)",
					tt.entityID, tt.friendly, rule, ident, tt.wantRule, tt.wantIdent)
			}
		})
	}
}

func TestIdentifierRules_OrderIsStable(t *testing.T) {
	// The vendor product rules must run before the generic suffix
	// rules, or a wall connector's sensors fragment into suffix groups.
	var teslaIdx, attrIdx int = -1, -1
	for i, r := range IdentifierRules {
		switch r.Name {
		case "tesla_wall_connector":
			teslaIdx = i
		case "attribute_sibling":
			attrIdx = i
		}
	}
	if teslaIdx == -1 || attrIdx == -1 {
		t.Fatal("expected tesla_wall_connector and attribute_sibling rules to exist")
	}
	if teslaIdx > attrIdx {
		t.Errorf("tesla_wall_connector (%d) must come before attribute_sibling (%d)", teslaIdx, attrIdx)
	}
}

func TestIdentifierRule_GroupBySemantics(t *testing.T) {
	dyson := func(name string) homeassistant.State { return entity("fan.x", name) }

	// Base-grouped rules collapse room qualifiers.
	_, a := ExtractIdentifier(dyson("Dyson Living Room"))
	_, b := ExtractIdentifier(dyson("Dyson Kitchen"))
	if a != b {
		t.Errorf("base-grouped extractions differ: %q vs %q", a, b)
	}

	// Device-grouped rules keep them.
	_, c := ExtractIdentifier(entity("media_player.a", "Sonos Living Room"))
	_, d := ExtractIdentifier(entity("media_player.b", "Sonos Kitchen"))
	if c == d {
		t.Errorf("device-grouped extractions collide: %q", c)
	}
}
