// Package discovery watches refresh output for devices that appear
// without a room assignment, so the dashboard can prompt the user to
// place them instead of silently filing them under "other".
package discovery

import (
	"log/slog"
	"sync"

	"github.com/homedeck/homedeck/internal/grouping"
	"github.com/homedeck/homedeck/internal/rooms"
)

// Detector tracks which unassigned device groups have been seen
// before. The first scan primes the baseline without reporting
// anything, so a fresh install does not flag the entire house as new.
// All methods are safe for concurrent use.
type Detector struct {
	logger *slog.Logger

	mu      sync.Mutex
	primed  bool
	known   map[string]bool
	pending map[string]grouping.Group
	order   []string
}

func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		logger:  logger,
		known:   make(map[string]bool),
		pending: make(map[string]grouping.Group),
	}
}

// Scan inspects a refresh's groups for unassigned devices that have
// not been seen before and adds them to the pending list, returning
// the groups detected by this scan. A nil or empty slice is a no-op
// so a failed refresh cannot wipe the baseline.
func (d *Detector) Scan(groups []grouping.Group) []grouping.Group {
	if len(groups) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.primed {
		for _, g := range groups {
			if unassigned(g) {
				d.known[g.DeviceID] = true
			}
		}
		d.primed = true
		d.logger.Debug("primed new-device baseline", "unassigned", len(d.known))
		return nil
	}

	var detected []grouping.Group
	for _, g := range groups {
		if !unassigned(g) || d.known[g.DeviceID] {
			continue
		}
		d.known[g.DeviceID] = true
		d.pending[g.DeviceID] = g
		d.order = append(d.order, g.DeviceID)
		detected = append(detected, g)
		d.logger.Info("new device detected",
			"device_id", g.DeviceID,
			"name", g.Name)
	}
	return detected
}

// NewDevices returns the pending new devices in detection order.
func (d *Detector) NewDevices() []grouping.Group {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]grouping.Group, 0, len(d.pending))
	for _, id := range d.order {
		if g, ok := d.pending[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

// HasNewDevices reports whether anything is pending.
func (d *Detector) HasNewDevices() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0
}

// Dismiss drops one pending device. It stays in the baseline, so it
// will not be reported again.
func (d *Detector) Dismiss(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, deviceID)
}

// DismissAll clears the pending list.
func (d *Detector) DismissAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = make(map[string]grouping.Group)
	d.order = nil
}

// unassigned reports whether a group landed without a usable room.
func unassigned(g grouping.Group) bool {
	return g.Room == "" || g.Room == rooms.Other
}
