// SoundMesh Core - Multi-Room Audio Hub
//
// This is the main entry point for the SoundMesh hub. It composes the
// logical state store, the Snapcast routing controller, the MQTT and KNX
// status surfaces, the grouping reconciler, and the REST/WebSocket API
// into one process with ordered startup and shutdown.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/soundmesh/soundmesh-core/migrations"

	"github.com/soundmesh/soundmesh-core/internal/api"
	"github.com/soundmesh/soundmesh-core/internal/audit"
	"github.com/soundmesh/soundmesh-core/internal/bridges/knx"
	"github.com/soundmesh/soundmesh-core/internal/commands"
	"github.com/soundmesh/soundmesh-core/internal/grouping"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/config"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/database"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/influxdb"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/logging"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/mqtt"
	"github.com/soundmesh/soundmesh-core/internal/notify"
	"github.com/soundmesh/soundmesh-core/internal/persistence"
	"github.com/soundmesh/soundmesh-core/internal/routing/snapcast"
	"github.com/soundmesh/soundmesh-core/internal/state"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// defaultZoneVolume seeds zones and clients that have never been persisted.
const defaultZoneVolume = 50

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SoundMesh Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// The configured inventory is the topology authority: persisted runtime
	// state is only restored when the inventory fingerprint still matches.
	stateStore := persistence.NewStore(db.DB)
	fingerprint := persistence.ComputeFingerprint(cfg.Inventory)
	matched, err := stateStore.EnsureFingerprint(ctx, fingerprint)
	if err != nil {
		return fmt.Errorf("checking inventory fingerprint: %w", err)
	}

	initial := seedState(cfg.Inventory)
	if matched {
		initial, err = stateStore.RestoreInto(ctx, initial)
		if err != nil {
			return fmt.Errorf("restoring persisted state: %w", err)
		}
		log.Info("persisted state restored",
			"zones", len(initial.Zones),
			"clients", len(initial.Clients),
		)
	} else {
		log.Info("inventory changed, starting from configured defaults")
	}
	initial.Status = state.SystemRunning

	states, err := state.New(initial, 0)
	if err != nil {
		return fmt.Errorf("initialising state store: %w", err)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to the Snapcast control port
	snap, err := snapcast.Dial(ctx, snapcast.Config{
		Address:           cfg.Snapcast.Address,
		ConnectTimeout:    time.Duration(cfg.Snapcast.ConnectTimeout) * time.Second,
		RequestTimeout:    time.Duration(cfg.Snapcast.RequestTimeout) * time.Second,
		ReconnectInterval: time.Duration(cfg.Snapcast.ReconnectInterval) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connecting to snapcast: %w", err)
	}
	defer func() {
		log.Info("closing snapcast connection")
		if closeErr := snap.Close(); closeErr != nil {
			log.Error("error closing snapcast", "error", closeErr)
		}
	}()
	snap.SetLogger(log.With("component", "snapcast"))
	log.Info("snapcast connected", "address", cfg.Snapcast.Address)

	// Status publishers: MQTT always, KNX when the bus is configured
	publishers := []notify.Publisher{
		notify.NewMQTTPublisher(mqttClient, byte(cfg.MQTT.QoS)),
	}
	if cfg.KNX.Enabled {
		knxClient, knxErr := startKNX(ctx, cfg, log)
		if knxErr != nil {
			return knxErr
		}
		defer func() {
			log.Info("closing KNX connection")
			if closeErr := knxClient.Close(); closeErr != nil {
				log.Error("error closing KNX", "error", closeErr)
			}
		}()

		zoneAddrs, clientAddrs, mapErr := knxAddressMaps(cfg.Inventory)
		if mapErr != nil {
			return fmt.Errorf("parsing KNX group addresses: %w", mapErr)
		}
		publishers = append(publishers, notify.NewKNXPublisher(knxClient, zoneAddrs, clientAddrs))
	} else {
		log.Info("KNX disabled")
	}

	queue := notify.NewQueue(notify.Config{
		ChannelDepth:   cfg.Notifications.ChannelDepth,
		PublishTimeout: time.Duration(cfg.Notifications.PublishTimeout) * time.Second,
	}, publishers...)
	queue.SetLogger(log.With("component", "notify"))
	queue.Start()
	defer func() {
		log.Info("draining notification queue")
		if closeErr := queue.Close(); closeErr != nil {
			log.Error("error closing notification queue", "error", closeErr)
		}
	}()

	// Grouping reconciler and its pass runner
	reconciler := grouping.New(states, snap)
	reconciler.SetLogger(log.With("component", "grouping"))

	var recorder grouping.PassRecorder
	if influxClient != nil {
		recorder = &influxPassRecorder{influx: influxClient}
	}
	runner := grouping.NewRunner(reconciler, time.Duration(cfg.Reconciler.Interval)*time.Second, recorder)

	// Command service shared by REST and MQTT intake
	auditRepo := audit.NewSQLiteRepository(db.DB)
	svc := commands.New(states, snap, queue, runner)
	svc.SetLogger(log.With("component", "commands"))
	svc.SetAuditor(auditRepo)

	intake := commands.NewMQTTIntake(svc, mqttClient, byte(cfg.MQTT.QoS))
	if err := intake.Start(); err != nil {
		return fmt.Errorf("starting MQTT command intake: %w", err)
	}
	log.Info("MQTT command intake subscribed")

	// Persist committed snapshots in the background
	saver := persistence.NewSaver(stateStore)
	saver.SetLogger(log.With("component", "persistence"))
	states.OnUpdate(saver.Observe)

	// Track client connectivity from server-pushed events
	watchRoutingEvents(snap, states, queue, log)

	// Record zone and client status changes as telemetry
	if influxClient != nil {
		watchStateTelemetry(states, influxClient)
	}

	// API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		States:   states,
		Commands: svc,
		Audit:    auditRepo,
		Grouping: reconciler,
		Trigger:  runner,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if err := queue.EnqueueGlobal(ctx, notify.EventStatus, map[string]any{"status": "online", "version": version}); err != nil {
		log.Warn("failed to announce startup", "error", err)
	}

	log.Info("initialisation complete")

	// Background loops run until the signal context cancels. Both return
	// ctx.Err(), so a clean shutdown surfaces as context.Canceled.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return saver.Run(gctx) })

	err = g.Wait()
	log.Info("shutdown signal received, cleaning up")

	// Mark the system stopping and persist that snapshot explicitly: the
	// saver's loop has already exited, so its channel would never drain it.
	stopped, updateErr := states.Update(func(sys *state.SystemState) *state.SystemState {
		sys.Status = state.SystemStopping
		return sys
	})
	if updateErr != nil {
		log.Error("error marking system stopping", "error", updateErr)
	} else {
		saver.SaveNow(stopped)
	}

	log.Info("SoundMesh Core stopped")
	return err
}

// getConfigPath returns the configuration file path.
// Uses SOUNDMESH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SOUNDMESH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// seedState builds the initial snapshot from the configured inventory.
// Zone membership is derived from each client's zone reference so the seed
// always validates.
func seedState(inv config.InventoryConfig) *state.SystemState {
	sys := state.NewSystemState()

	for _, s := range inv.Streams {
		sys.Streams[s.ID] = state.StreamState{
			ID:                     s.ID,
			AudioRoutingStreamPath: s.SnapcastStream,
		}
	}

	members := make(map[string][]string, len(inv.Zones))
	for _, c := range inv.Clients {
		sys.Clients[c.ID] = state.ClientState{
			ID:                   c.ID,
			Name:                 c.Name,
			ZoneID:               c.Zone,
			Volume:               defaultZoneVolume,
			AudioRoutingClientID: c.SnapcastID,
		}
		if c.Zone != "" {
			members[c.Zone] = append(members[c.Zone], c.ID)
		}
	}

	for _, z := range inv.Zones {
		clientIDs := members[z.ID]
		if clientIDs == nil {
			clientIDs = []string{}
		}
		sort.Strings(clientIDs)
		sys.Zones[z.ID] = state.ZoneState{
			ID:              z.ID,
			Name:            z.Name,
			CurrentStreamID: z.DefaultStream,
			ClientIDs:       clientIDs,
			Volume:          defaultZoneVolume,
			Playback:        state.PlaybackStopped,
		}
	}

	return sys
}

// startKNX connects to the knxd daemon for status mirroring.
func startKNX(ctx context.Context, cfg *config.Config, log *logging.Logger) (*knx.Client, error) {
	knxClient, err := knx.Connect(ctx, knx.Config{
		Connection:        cfg.KNX.Connection,
		ConnectTimeout:    time.Duration(cfg.KNX.ConnectTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.KNX.WriteTimeout) * time.Second,
		ReconnectInterval: time.Duration(cfg.KNX.ReconnectInterval) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to knxd: %w", err)
	}
	knxClient.SetLogger(log.With("component", "knx"))
	log.Info("KNX connected", "connection", cfg.KNX.Connection)
	return knxClient, nil
}

// knxAddressMaps parses the inventory's group address strings into the
// publisher's address maps. Empty strings leave that aspect off the bus;
// malformed addresses fail startup.
func knxAddressMaps(inv config.InventoryConfig) (map[string]notify.KNXZoneAddresses, map[string]notify.KNXClientAddresses, error) {
	zones := make(map[string]notify.KNXZoneAddresses)
	for _, z := range inv.Zones {
		var addrs notify.KNXZoneAddresses
		var err error
		if addrs.Volume, err = parseOptionalGA(z.KNX.Volume); err != nil {
			return nil, nil, fmt.Errorf("zone %s volume: %w", z.ID, err)
		}
		if addrs.Mute, err = parseOptionalGA(z.KNX.Mute); err != nil {
			return nil, nil, fmt.Errorf("zone %s mute: %w", z.ID, err)
		}
		if addrs.Playing, err = parseOptionalGA(z.KNX.Playing); err != nil {
			return nil, nil, fmt.Errorf("zone %s playing: %w", z.ID, err)
		}
		if !addrs.Volume.IsZero() || !addrs.Mute.IsZero() || !addrs.Playing.IsZero() {
			zones[z.ID] = addrs
		}
	}

	clients := make(map[string]notify.KNXClientAddresses)
	for _, c := range inv.Clients {
		var addrs notify.KNXClientAddresses
		var err error
		if addrs.Volume, err = parseOptionalGA(c.KNX.Volume); err != nil {
			return nil, nil, fmt.Errorf("client %s volume: %w", c.ID, err)
		}
		if addrs.Mute, err = parseOptionalGA(c.KNX.Mute); err != nil {
			return nil, nil, fmt.Errorf("client %s mute: %w", c.ID, err)
		}
		if addrs.Connected, err = parseOptionalGA(c.KNX.Connected); err != nil {
			return nil, nil, fmt.Errorf("client %s connected: %w", c.ID, err)
		}
		if !addrs.Volume.IsZero() || !addrs.Mute.IsZero() || !addrs.Connected.IsZero() {
			clients[c.ID] = addrs
		}
	}

	return zones, clients, nil
}

// parseOptionalGA parses a group address string, treating empty as unwired.
func parseOptionalGA(s string) (knx.GroupAddress, error) {
	if s == "" {
		return knx.GroupAddress{}, nil
	}
	return knx.ParseGroupAddress(s)
}

// watchRoutingEvents registers a notification callback on the snapcast
// client that tracks per-client connectivity in the state store.
func watchRoutingEvents(snap *snapcast.Client, states *state.Store, queue *notify.Queue, log *logging.Logger) {
	snap.SetOnNotification(func(n snapcast.Notification) {
		var connected bool
		switch n.Method {
		case "Client.OnConnect":
			connected = true
		case "Client.OnDisconnect":
			connected = false
		default:
			return
		}

		var event struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(n.Params, &event); err != nil || event.ID == "" {
			log.Debug("unparseable client event", "method", n.Method, "error", err)
			return
		}

		updated, err := states.Update(func(sys *state.SystemState) *state.SystemState {
			for id, client := range sys.Clients {
				if client.AudioRoutingClientID != event.ID {
					continue
				}
				client.Connected = connected
				sys.Clients[id] = client
				return sys
			}
			// Unknown routing clients are not part of the inventory.
			return nil
		})
		if err != nil {
			log.Debug("client event for unmanaged routing client", "routing_id", event.ID)
			return
		}

		for id, client := range updated.Clients {
			if client.AudioRoutingClientID != event.ID {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if enqErr := queue.EnqueueClient(ctx, notify.EventStatus, id, notify.ClientStatus{
				ClientID:  client.ID,
				Name:      client.Name,
				ZoneID:    client.ZoneID,
				Volume:    client.Volume,
				Muted:     client.Muted,
				Connected: client.Connected,
			}); enqErr != nil {
				log.Warn("failed to enqueue connectivity event", "client", id, "error", enqErr)
			}
			cancel()
			log.Info("client connectivity changed", "client", id, "connected", connected)
			return
		}
	})
}

// statusTelemetry is the slice of the InfluxDB client consumed by the state
// telemetry observer.
type statusTelemetry interface {
	WriteZoneStatus(zoneID, streamID string, volume int, muted, playing bool)
	WriteClientStatus(clientID string, volume int, muted, connected bool)
}

// watchStateTelemetry registers a state-store observer that records changed
// zone and client status. The observer only diffs the two snapshots and
// hands points to the client's asynchronous batcher, so it stays within the
// store's fast-observer contract.
func watchStateTelemetry(states *state.Store, telem statusTelemetry) {
	states.OnUpdate(func(previous, current *state.SystemState) {
		for id, zone := range current.Zones {
			if prev, ok := previous.Zones[id]; !ok || zoneStatusChanged(prev, zone) {
				telem.WriteZoneStatus(id, zone.CurrentStreamID, zone.Volume, zone.Muted,
					zone.Playback == state.PlaybackPlaying)
			}
		}
		for id, client := range current.Clients {
			if prev, ok := previous.Clients[id]; !ok || prev != client {
				telem.WriteClientStatus(id, client.Volume, client.Muted, client.Connected)
			}
		}
	})
}

// zoneStatusChanged compares the zone fields that land in telemetry.
func zoneStatusChanged(a, b state.ZoneState) bool {
	return a.CurrentStreamID != b.CurrentStreamID || a.Volume != b.Volume ||
		a.Muted != b.Muted || a.Playback != b.Playback
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// influxPassRecorder adapts the InfluxDB client to the grouping runner's
// recorder interface.
type influxPassRecorder struct {
	influx *influxdb.Client
}

func (r *influxPassRecorder) RecordGroupingPass(report *grouping.ReconciliationReport, err error) {
	if report == nil {
		r.influx.WriteGroupingPass(0, 0, 0, 0, 0, 0, true)
		return
	}
	r.influx.WriteGroupingPass(
		report.ZonesProcessed,
		report.ClientsChecked,
		len(report.Moves),
		len(report.GroupsCreated),
		len(report.Errors),
		report.Duration,
		err != nil,
	)
}
