package registry

import (
	"strings"

	"github.com/homedeck/homedeck/internal/homeassistant"
)

// Media player supported_features bitmask, as defined by Home
// Assistant's media_player component. Only the bits the classifier
// inspects are named here.
const (
	featurePause        = 1
	featureVolumeSet    = 4
	featureTurnOn       = 128
	featureTurnOff      = 256
	featurePlayMedia    = 512
	featureSelectSource = 2048
	featureSelectSound  = 65536
)

// capabilities summarizes what an entity cluster belonging to one
// device can do, bucketed by domain.
type capabilities struct {
	hasCamera       bool
	hasMediaPlayer  bool
	hasClimate      bool
	hasLight        bool
	hasSwitch       bool
	hasLock         bool
	hasSensors      bool
	hasControls     bool
	mediaFeatures   []string
	sensorOnlyNames []string
}

// DeviceType classifies a device into a coarse type string (camera,
// doorbell, tv, speaker, thermostat, light_strip, outlet, …) using a
// fixed priority cascade over the device's entities, model,
// manufacturer, and names. Returns "unknown" when nothing matches; a
// nil device is always "unknown".
func DeviceType(device *homeassistant.DeviceRegistryEntry, entities map[string]homeassistant.State) string {
	if device == nil {
		return "unknown"
	}

	caps := scanCapabilities(device.ID, entities)
	haystack := strings.ToLower(strings.Join([]string{
		device.Manufacturer, device.Model, device.Name, device.NameByUser,
	}, " "))

	// Priority cascade: first matching rule wins.
	switch {
	case caps.hasCamera:
		if strings.Contains(haystack, "doorbell") {
			return "doorbell"
		}
		return "camera"

	case caps.hasMediaPlayer:
		return mediaPlayerType(haystack, caps)

	case caps.hasClimate:
		switch {
		case strings.Contains(haystack, "thermostat"):
			return "thermostat"
		case strings.Contains(haystack, "air conditioner"), strings.Contains(haystack, "ac unit"):
			return "air_conditioner"
		default:
			return "climate"
		}

	case caps.hasLight:
		switch {
		case strings.Contains(haystack, "strip"):
			return "light_strip"
		case strings.Contains(haystack, "bulb"):
			return "light_bulb"
		default:
			return "light"
		}

	case caps.hasLock, strings.Contains(haystack, "lock"), strings.Contains(haystack, "deadbolt"):
		return "lock"

	case strings.Contains(haystack, "alarm"), strings.Contains(haystack, "siren"):
		return "alarm"

	case caps.hasSensors && !caps.hasControls:
		return sensorType(haystack, caps.sensorOnlyNames)

	case caps.hasSwitch:
		if strings.Contains(haystack, "outlet") || strings.Contains(haystack, "plug") {
			return "outlet"
		}
		return "switch"
	}

	return "unknown"
}

// mediaPlayerType distinguishes TVs, soundbars, speakers, and
// streaming boxes by manufacturer/model substrings, falling back to a
// generic media_player.
func mediaPlayerType(haystack string, caps capabilities) string {
	switch {
	case strings.Contains(haystack, "tv"), strings.Contains(haystack, "television"),
		strings.Contains(haystack, "bravia"), strings.Contains(haystack, "webos"):
		return "tv"
	case strings.Contains(haystack, "soundbar"), strings.Contains(haystack, "beam"),
		strings.Contains(haystack, "arc"), strings.Contains(haystack, "playbar"):
		return "soundbar"
	case strings.Contains(haystack, "sonos"), strings.Contains(haystack, "speaker"),
		strings.Contains(haystack, "bose"):
		return "speaker"
	case strings.Contains(haystack, "chromecast"), strings.Contains(haystack, "roku"),
		strings.Contains(haystack, "apple tv"), strings.Contains(haystack, "shield"):
		return "streaming"
	case strings.Contains(haystack, "echo"), strings.Contains(haystack, "google home"),
		strings.Contains(haystack, "nest mini"), strings.Contains(haystack, "homepod"):
		return "smart_speaker"
	}

	// A player that can only select sources and switch on/off but not
	// play media itself is usually a TV input.
	if contains(caps.mediaFeatures, "select_source") && !contains(caps.mediaFeatures, "play_media") {
		return "tv"
	}

	return "media_player"
}

// sensorType classifies sensor-only devices (no control domains) by
// name substrings.
func sensorType(haystack string, names []string) string {
	all := haystack + " " + strings.ToLower(strings.Join(names, " "))
	switch {
	case strings.Contains(all, "motion"), strings.Contains(all, "occupancy"),
		strings.Contains(all, "presence"):
		return "motion_sensor"
	case strings.Contains(all, "door"):
		return "door_sensor"
	case strings.Contains(all, "window"):
		return "window_sensor"
	case strings.Contains(all, "temperature"), strings.Contains(all, "thermometer"):
		return "temperature_sensor"
	case strings.Contains(all, "humidity"):
		return "humidity_sensor"
	default:
		return "sensor"
	}
}

// scanCapabilities walks every entity that belongs to the device and
// buckets them by domain, decoding the media_player feature bitmask
// along the way.
func scanCapabilities(deviceID string, entities map[string]homeassistant.State) capabilities {
	var caps capabilities

	for _, id := range EntitiesForDevice(deviceID, entities) {
		e := entities[id]
		switch e.Domain() {
		case "camera":
			caps.hasCamera = true
			caps.hasControls = true
		case "media_player":
			caps.hasMediaPlayer = true
			caps.hasControls = true
			caps.mediaFeatures = decodeMediaFeatures(e.SupportedFeatures())
		case "climate":
			caps.hasClimate = true
			caps.hasControls = true
		case "light":
			caps.hasLight = true
			caps.hasControls = true
		case "switch":
			caps.hasSwitch = true
			caps.hasControls = true
		case "lock":
			caps.hasLock = true
			caps.hasControls = true
		case "cover", "fan", "vacuum":
			caps.hasControls = true
		case "sensor", "binary_sensor":
			caps.hasSensors = true
			caps.sensorOnlyNames = append(caps.sensorOnlyNames, e.Name())
		}
	}

	return caps
}

// decodeMediaFeatures translates the supported_features bitmask into
// named feature strings.
func decodeMediaFeatures(mask int) []string {
	var features []string
	for _, f := range []struct {
		bit  int
		name string
	}{
		{featurePause, "pause"},
		{featureVolumeSet, "volume_set"},
		{featureTurnOn, "turn_on"},
		{featureTurnOff, "turn_off"},
		{featurePlayMedia, "play_media"},
		{featureSelectSource, "select_source"},
		{featureSelectSound, "select_sound_mode"},
	} {
		if mask&f.bit != 0 {
			features = append(features, f.name)
		}
	}
	return features
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
