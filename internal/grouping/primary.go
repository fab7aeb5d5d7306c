package grouping

import "github.com/homedeck/homedeck/internal/homeassistant"

// domainPriority orders entity domains by how representative they are
// of the device a group models. The first member whose domain appears
// earliest in this list becomes the group's primary entity; domains
// not listed rank after all of these, and ties keep input order.
var domainPriority = []string{
	"media_player",
	"climate",
	"light",
	"switch",
	"cover",
	"fan",
	"lock",
	"camera",
	"vacuum",
	"sensor",
	"binary_sensor",
}

func domainRank(domain string) int {
	for i, d := range domainPriority {
		if d == domain {
			return i
		}
	}
	return len(domainPriority)
}

// PrimaryEntity picks the member entity that best represents the
// group, by domain priority. Panics on an empty slice; groups always
// have at least one member.
func PrimaryEntity(members []homeassistant.State) homeassistant.State {
	best := 0
	bestRank := domainRank(members[0].Domain())
	for i := 1; i < len(members); i++ {
		if r := domainRank(members[i].Domain()); r < bestRank {
			best, bestRank = i, r
		}
	}
	return members[best]
}

// cameraPrimary prefers the camera feed itself, then a binary sensor
// (motion or doorbell press), before falling back to the standard
// priority order.
func cameraPrimary(members []homeassistant.State) homeassistant.State {
	for _, domain := range []string{"camera", "binary_sensor"} {
		for _, m := range members {
			if m.Domain() == domain {
				return m
			}
		}
	}
	return PrimaryEntity(members)
}
