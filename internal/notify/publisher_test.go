package notify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/homedeck/homedeck/internal/config"
)

func TestLoadOrCreateInstanceID_CreatesFile(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if id == "" {
		t.Fatal("LoadOrCreateInstanceID() returned empty string")
	}

	// Verify the file was written.
	data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != id {
		t.Errorf("file content = %q, want %q", got, id)
	}
}

func TestLoadOrCreateInstanceID_ReturnsExisting(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}

	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if second != first {
		t.Errorf("second = %q, want %q (should be stable)", second, first)
	}
}

func TestLoadOrCreateInstanceID_UUIDFormat(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}

	// UUIDv7 format: 8-4-4-4-12 hex digits.
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Errorf("id %q does not look like a UUID (expected 5 dash-separated parts)", id)
	}
}

func TestNewDeviceInfo(t *testing.T) {
	info := NewDeviceInfo("test-instance-id", "test-device")
	if info.Name != "test-device" {
		t.Errorf("Name = %q, want %q", info.Name, "test-device")
	}
	if len(info.Identifiers) != 1 || info.Identifiers[0] != "test-instance-id" {
		t.Errorf("Identifiers = %v, want [test-instance-id]", info.Identifiers)
	}
}

func TestPublisher_TopicPaths(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:          "mqtt://localhost:1883",
		DeviceName:      "den-deck",
		DiscoveryPrefix: "homeassistant",
	}
	p := New(cfg, "test-id", nil, nil)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"baseTopic", p.baseTopic(), "homedeck/den-deck"},
		{"availabilityTopic", p.availabilityTopic(), "homedeck/den-deck/availability"},
		{"stateTopic uptime", p.stateTopic("uptime"), "homedeck/den-deck/uptime/state"},
		{"discoveryTopic sensor uptime", p.discoveryTopic("sensor", "uptime"), "homeassistant/sensor/den-deck/uptime/config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPublisher_SensorDefinitions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:             "mqtt://localhost:1883",
		DeviceName:         "test-deck",
		DiscoveryPrefix:    "homeassistant",
		PublishIntervalSec: 60,
	}
	p := New(cfg, "instance-123", nil, nil)

	defs := p.sensorDefinitions()

	expectedEntities := []string{
		"uptime", "version",
		"device_count", "room_count", "new_devices", "last_refresh",
	}

	if len(defs) != len(expectedEntities) {
		t.Fatalf("got %d sensor definitions, want %d", len(defs), len(expectedEntities))
	}

	entitySet := make(map[string]bool)
	for _, d := range defs {
		entitySet[d.entitySuffix] = true

		// Sensor Name must NOT contain the device name, or HA derives
		// double-prefix entity ids like sensor.foo_foo_uptime.
		if strings.Contains(d.config.Name, cfg.DeviceName) {
			t.Errorf("sensor %s: Name %q contains device name %q",
				d.entitySuffix, d.config.Name, cfg.DeviceName)
		}

		wantAvail := "homedeck/test-deck/availability"
		if d.config.AvailabilityTopic != wantAvail {
			t.Errorf("sensor %s: AvailabilityTopic = %q, want %q",
				d.entitySuffix, d.config.AvailabilityTopic, wantAvail)
		}

		if !strings.HasPrefix(d.config.UniqueID, "instance-123_") {
			t.Errorf("sensor %s: UniqueID = %q, should start with %q",
				d.entitySuffix, d.config.UniqueID, "instance-123_")
		}

		// ObjectID must match entitySuffix so HA derives clean entity ids.
		if d.config.ObjectID != d.entitySuffix {
			t.Errorf("sensor %s: ObjectID = %q, want %q",
				d.entitySuffix, d.config.ObjectID, d.entitySuffix)
		}

		if !d.config.HasEntityName {
			t.Errorf("sensor %s: HasEntityName = false, want true", d.entitySuffix)
		}

		if len(d.config.Device.Identifiers) == 0 {
			t.Errorf("sensor %s: Device.Identifiers is empty", d.entitySuffix)
		}
	}

	for _, name := range expectedEntities {
		if !entitySet[name] {
			t.Errorf("missing sensor definition for %q", name)
		}
	}
}

func TestMQTTConfig_Configured(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MQTTConfig
		want bool
	}{
		{"both set", config.MQTTConfig{Broker: "mqtt://localhost", DeviceName: "deck"}, true},
		{"missing broker", config.MQTTConfig{DeviceName: "deck"}, false},
		{"missing device_name", config.MQTTConfig{Broker: "mqtt://localhost"}, false},
		{"empty", config.MQTTConfig{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}
