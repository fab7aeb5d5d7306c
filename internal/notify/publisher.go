package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/homedeck/homedeck/internal/config"
)

// StatsSource provides runtime data for sensor state publishing. The
// concrete adapter is wired in main to avoid coupling this package to
// the dashboard service.
type StatsSource interface {
	// Uptime returns the process uptime.
	Uptime() time.Duration
	// Version returns the software version string.
	Version() string
	// DeviceCount returns the number of visible device groups.
	DeviceCount() int
	// RoomCount returns the number of rooms with visible devices.
	RoomCount() int
	// NewDeviceCount returns the number of pending new devices.
	NewDeviceCount() int
	// LastRefreshTime returns when the most recent refresh completed.
	LastRefreshTime() time.Time
}

// Publisher manages the MQTT connection, publishes HA discovery config
// messages on (re-)connect, and runs a periodic loop that pushes
// sensor state updates to the broker.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	stats      StatsSource
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and publish loop.
func New(cfg config.MQTTConfig, instanceID string, stats StatsSource, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.DeviceName),
		stats:      stats,
		logger:     logger,
	}
}

// Start connects to the MQTT broker and begins the periodic publish
// loop. It blocks until ctx is cancelled. On every (re-)connect it
// publishes discovery configs and a birth message.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "homedeck-" + p.cfg.DeviceName,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	// Wait for the initial connection before starting the publish loop.
	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// Log but don't fail; autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop gracefully disconnects by publishing an "offline" availability
// message before closing the MQTT connection. The provided context
// controls how long to wait for the publish and disconnect to complete.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// Publish pushes the current sensor states immediately, outside the
// periodic loop. The serve loop calls it on refresh and new-device
// events so the broker reflects changes without waiting for a tick.
func (p *Publisher) Publish(ctx context.Context) {
	p.publishStates(ctx)
}

// AwaitConnection blocks until the MQTT broker connection is
// established or ctx expires.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	if p.cm == nil {
		return fmt.Errorf("mqtt publisher not started")
	}
	return p.cm.AwaitConnection(ctx)
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return "homedeck/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) stateTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/state"
}

func (p *Publisher) discoveryTopic(component, entity string) string {
	return p.cfg.DiscoveryPrefix + "/" + component + "/" + p.cfg.DeviceName + "/" + entity + "/config"
}

// --- Discovery ---

type sensorDef struct {
	entitySuffix string
	config       SensorConfig
}

// Sensor names are short and HasEntityName is set, so HA renders them
// relative to the device name instead of double-prefixing entity ids.
func (p *Publisher) sensorDefinitions() []sensorDef {
	avail := p.availabilityTopic()

	sensor := func(suffix, name string) SensorConfig {
		return SensorConfig{
			Name:              name,
			ObjectID:          suffix,
			HasEntityName:     true,
			UniqueID:          p.instanceID + "_" + suffix,
			StateTopic:        p.stateTopic(suffix),
			AvailabilityTopic: avail,
			Device:            p.device,
		}
	}

	uptime := sensor("uptime", "Uptime")
	uptime.Icon = "mdi:clock-outline"
	uptime.EntityCategory = "diagnostic"

	version := sensor("version", "Version")
	version.Icon = "mdi:tag"
	version.EntityCategory = "diagnostic"

	deviceCount := sensor("device_count", "Devices")
	deviceCount.Icon = "mdi:devices"
	deviceCount.StateClass = "measurement"

	roomCount := sensor("room_count", "Rooms")
	roomCount.Icon = "mdi:floor-plan"
	roomCount.StateClass = "measurement"

	newDevices := sensor("new_devices", "New Devices")
	newDevices.Icon = "mdi:new-box"
	newDevices.StateClass = "measurement"

	lastRefresh := sensor("last_refresh", "Last Refresh")
	lastRefresh.Icon = "mdi:clock-check"
	lastRefresh.EntityCategory = "diagnostic"

	return []sensorDef{
		{entitySuffix: "uptime", config: uptime},
		{entitySuffix: "version", config: version},
		{entitySuffix: "device_count", config: deviceCount},
		{entitySuffix: "room_count", config: roomCount},
		{entitySuffix: "new_devices", config: newDevices},
		{entitySuffix: "last_refresh", config: lastRefresh},
	}
}

func (p *Publisher) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	for _, s := range p.sensorDefinitions() {
		topic := p.discoveryTopic("sensor", s.entitySuffix)
		payload, err := json.Marshal(s.config)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload",
				"entity", s.entitySuffix, "error", err)
			continue
		}

		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("mqtt discovery publish failed",
				"entity", s.entitySuffix, "topic", topic, "error", err)
		} else {
			p.logger.Debug("mqtt discovery published",
				"entity", s.entitySuffix, "topic", topic)
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Periodic state loop ---

func (p *Publisher) runLoop(ctx context.Context) {
	interval := time.Duration(p.cfg.PublishIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Publish immediately on start.
	p.publishStates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStates(ctx)
		}
	}
}

func (p *Publisher) publishStates(ctx context.Context) {
	if p.cm == nil {
		return
	}

	states := map[string]string{
		"uptime":       p.stats.Uptime().Truncate(time.Second).String(),
		"version":      p.stats.Version(),
		"device_count": strconv.Itoa(p.stats.DeviceCount()),
		"room_count":   strconv.Itoa(p.stats.RoomCount()),
		"new_devices":  strconv.Itoa(p.stats.NewDeviceCount()),
	}

	lastRefresh := p.stats.LastRefreshTime()
	if !lastRefresh.IsZero() {
		states["last_refresh"] = lastRefresh.Format(time.RFC3339)
	} else {
		states["last_refresh"] = "never"
	}

	for entity, value := range states {
		if _, err := p.cm.Publish(ctx, &paho.Publish{
			Topic:   p.stateTopic(entity),
			Payload: []byte(value),
			QoS:     0,
			Retain:  true,
		}); err != nil {
			p.logger.Debug("mqtt state publish failed",
				"entity", entity, "error", err)
		}
	}

	p.logger.Debug("mqtt sensor states published",
		"entities", len(states))
}
