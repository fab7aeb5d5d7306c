// Homedeck is a room-organized dashboard service for Home Assistant.
//
// It connects to a Home Assistant hub, groups loose entities into the
// physical devices behind them, assigns devices to rooms, and serves
// the resulting view over a JSON API with a WebSocket event feed.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	homedeck serve           Start the dashboard server
//	homedeck version         Print version and build information
//	homedeck -o json version Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/homedeck/homedeck/internal/buildinfo"
	"github.com/homedeck/homedeck/internal/config"
	"github.com/homedeck/homedeck/internal/connwatch"
	"github.com/homedeck/homedeck/internal/dashboard"
	"github.com/homedeck/homedeck/internal/discovery"
	"github.com/homedeck/homedeck/internal/events"
	"github.com/homedeck/homedeck/internal/grouping"
	"github.com/homedeck/homedeck/internal/homeassistant"
	"github.com/homedeck/homedeck/internal/notify"
	"github.com/homedeck/homedeck/internal/overrides"
	"github.com/homedeck/homedeck/internal/web"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the homedeck command. All OS-level
// dependencies are injected as parameters so tests can drive the full
// lifecycle. Arguments are parsed by hand; the flag package relies on
// package-level globals that interfere with parallel tests, and the
// argument surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Homedeck - Room-organized Home Assistant dashboard")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: homedeck [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the dashboard server")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/homedeck/config.yaml, /etc/homedeck/config.yaml")
	return nil
}

// runServe handles the "homedeck serve" subcommand. It is the only
// operating mode beyond version: loads config, opens the override
// database, connects to Home Assistant, builds the initial view, and
// blocks serving the API until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The MQTT publisher announces offline and disconnects
//  3. The override store flushes any pending writes
//  4. The HTTP server drains in-flight requests
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting homedeck", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that we know the desired level. The
	// initial Info-level logger covers only the startup banner.
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("config log_level: %w", err)
	}
	logger = newLogger(stdout, level)

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"hub", cfg.HomeAssistant.URL,
	)

	if cfg.HomeAssistant.URL == "" || cfg.HomeAssistant.Token == "" {
		return fmt.Errorf("homeassistant.url and homeassistant.token are required")
	}

	// --- Data directory and override store ---
	// The only persistent state is the user's device overrides, kept in
	// a small SQLite database under the data directory.
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	dbPath := filepath.Join(cfg.DataDir, "homedeck.db")
	backend, err := overrides.NewSQLiteBackend(dbPath)
	if err != nil {
		return fmt.Errorf("open override database %s: %w", dbPath, err)
	}
	defer backend.Close()

	store := overrides.NewStore(backend, logger)
	if err := store.Open(ctx); err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	logger.Info("override store opened", "path", dbPath, "overrides", len(store.All()))

	// --- Refresh pipeline ---
	bus := events.New()
	engine := grouping.NewEngine(logger)
	detector := discovery.NewDetector(logger)
	svc := dashboard.NewService(engine, store, detector, bus, logger)

	// --- Home Assistant clients ---
	// REST for the bulk state fetch, WebSocket for registries and the
	// state_changed event stream.
	ha := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	haWS := homeassistant.NewWSClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	snapshot := homeassistant.NewSnapshot(logger)

	refresh := func() { svc.Refresh(snapshot.All()) }

	// resync performs a full pull from the hub: entity states wholesale,
	// device and area registries, then a regroup. Runs on every
	// (re-)connect since incremental events may have been missed.
	resync := func() {
		syncCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		states, err := ha.GetStates(syncCtx)
		if err != nil {
			logger.Error("state fetch failed", "error", err)
			return
		}
		snapshot.Replace(states)
		bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceHub,
			Kind:      events.KindSnapshotReplaced,
			Data:      map[string]any{"entities": len(states)},
		})

		// Registry fetches are best effort. The grouping engine derives
		// rooms and devices from names alone when the hub withholds them.
		devices, err := haWS.GetDeviceRegistry(syncCtx)
		if err != nil {
			logger.Warn("device registry unavailable", "error", err)
		}
		areas, err := haWS.GetAreaRegistry(syncCtx)
		if err != nil {
			logger.Warn("area registry unavailable", "error", err)
		}
		entries, err := haWS.GetEntityRegistry(syncCtx)
		if err != nil {
			logger.Warn("entity registry unavailable", "error", err)
		}
		svc.SetRegistries(devices, areas)
		svc.SetEntityRegistry(entries)

		view := svc.Refresh(snapshot.All())
		logger.Info("hub sync complete",
			"entities", snapshot.Len(),
			"devices", len(devices),
			"areas", len(areas),
			"rooms", len(view.Rooms),
		)
	}

	// --- Signal handling ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Hub connection watcher ---
	// Probes the hub with exponential backoff and re-establishes the
	// WebSocket plus a full resync whenever it comes back.
	connMgr := connwatch.NewManager(logger)
	defer connMgr.Stop()

	var wasDown bool
	var subscribeOnce sync.Once
	connMgr.Watch(ctx, connwatch.WatcherConfig{
		Name:    "homeassistant",
		Probe:   func(pCtx context.Context) error { return ha.Ping(pCtx) },
		Backoff: connwatch.DefaultBackoffConfig(),
		OnReady: func() {
			wsCtx, wsCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer wsCancel()
			if err := haWS.Reconnect(wsCtx); err != nil {
				logger.Error("websocket reconnect failed", "error", err)
				return
			}

			// First connection subscribes; later reconnects restore
			// subscriptions inside the WebSocket client.
			subscribeOnce.Do(func() {
				subCtx, subCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer subCancel()
				if err := haWS.Subscribe(subCtx, "state_changed"); err != nil {
					logger.Error("subscribe to state_changed failed", "error", err)
				}
			})

			resync()

			if wasDown {
				wasDown = false
				bus.Publish(events.Event{
					Timestamp: time.Now(),
					Source:    events.SourceHub,
					Kind:      events.KindHubReconnected,
				})
			}
		},
		OnDown: func(err error) {
			wasDown = true
			bus.Publish(events.Event{
				Timestamp: time.Now(),
				Source:    events.SourceHub,
				Kind:      events.KindHubDisconnected,
				Data:      map[string]any{"error": err.Error()},
			})
		},
		Logger: logger,
	})

	// --- State change loop ---
	// Applies state_changed events to the snapshot and coalesces them
	// into periodic regroups instead of rebuilding the view per event.
	coalesce := time.Duration(cfg.Refresh.CoalesceSec) * time.Second
	if coalesce <= 0 {
		coalesce = 2 * time.Second
	}
	go func() {
		ticker := time.NewTicker(coalesce)
		defer ticker.Stop()

		dirty := false
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-haWS.Events():
				if snapshot.Apply(ev) {
					dirty = true
				}
			case <-ticker.C:
				if dirty {
					dirty = false
					refresh()
				}
			}
		}
	}()

	// --- API server ---
	server := web.NewServer(cfg.Listen.Address, cfg.Listen.Port, svc, store, detector, bus, refresh, logger)
	server.SetDependencyStatus(func() map[string]web.DependencyStatus {
		status := connMgr.Status()
		result := make(map[string]web.DependencyStatus, len(status))
		for name, s := range status {
			ds := web.DependencyStatus{
				Name:      s.Name,
				Ready:     s.Ready,
				LastError: s.LastError,
			}
			if !s.LastCheck.IsZero() {
				ds.LastCheck = s.LastCheck.Format(time.RFC3339)
			}
			result[name] = ds
		}
		return result
	})

	// --- MQTT presence publisher ---
	// Optional: announces homedeck to Home Assistant via MQTT discovery
	// and publishes periodic stats sensors.
	var mqttPub *notify.Publisher
	if cfg.MQTT.Configured() {
		instanceID, err := notify.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}

		mqttPub = notify.New(cfg.MQTT, instanceID, &statsAdapter{svc: svc}, logger)
		go func() {
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()

		// Push sensor updates when the view changes instead of waiting
		// for the next periodic tick.
		ch := bus.Subscribe(16)
		go func() {
			defer bus.Unsubscribe(ch)
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					if ev.Kind == events.KindRefreshComplete || ev.Kind == events.KindNewDevice {
						mqttPub.Publish(ctx)
					}
				}
			}
		}()

		connMgr.Watch(ctx, connwatch.WatcherConfig{
			Name: "mqtt",
			Probe: func(pCtx context.Context) error {
				awaitCtx, awaitCancel := context.WithTimeout(pCtx, 2*time.Second)
				defer awaitCancel()
				return mqttPub.AwaitConnection(awaitCtx)
			},
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  logger,
		})

		logger.Info("mqtt publishing enabled",
			"broker", cfg.MQTT.Broker,
			"device_name", cfg.MQTT.DeviceName,
			"interval", cfg.MQTT.PublishIntervalSec,
		)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	// --- Graceful shutdown ---
	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if mqttPub != nil {
			if err := mqttPub.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		if err := store.Close(shutdownCtx); err != nil {
			logger.Error("override store flush failed", "error", err)
		}
		haWS.Close()
		_ = server.Shutdown(shutdownCtx)
	}()

	// Start the API server. This blocks until the server is shut down
	// (via context cancellation or fatal error).
	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("homedeck stopped")
	return nil
}

// newLogger creates a structured text logger that writes to w at the
// given level. All log output goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// statsAdapter feeds dashboard view counts to the MQTT publisher's
// [notify.StatsSource] interface.
type statsAdapter struct {
	svc *dashboard.Service
}

func (a *statsAdapter) Uptime() time.Duration { return buildinfo.Uptime() }
func (a *statsAdapter) Version() string       { return buildinfo.Version }

func (a *statsAdapter) DeviceCount() int {
	n := 0
	for _, r := range a.svc.View().Rooms {
		n += len(r.Devices)
	}
	return n
}

func (a *statsAdapter) RoomCount() int {
	return len(a.svc.View().Rooms)
}

func (a *statsAdapter) NewDeviceCount() int {
	return len(a.svc.View().NewDevices)
}

func (a *statsAdapter) LastRefreshTime() time.Time {
	return a.svc.View().GeneratedAt
}
