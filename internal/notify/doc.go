// Package notify publishes Home Assistant MQTT discovery messages and
// periodic sensor state updates so the dashboard appears as a native
// HA device with availability tracking. Users can automate on the
// dashboard's own sensors (device count, new-device count) without
// touching its HTTP API.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes retained discovery config payloads for
// each sensor entity and a birth message ("online") to the
// availability topic. A will message ensures the availability topic
// transitions to "offline" on unexpected disconnects.
package notify
