package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soundmesh/soundmesh-core/internal/audit"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/mqtt"
)

// commandTimeout bounds one bus-initiated command, covering the state
// commit and the best-effort routing server push.
const commandTimeout = 10 * time.Second

// MQTTSubscriber is the subscription surface of the MQTT client.
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Command topic names under soundmesh/command/{zone|client}/{id}/.
const (
	cmdVolume   = "volume"
	cmdMute     = "mute"
	cmdStream   = "stream"
	cmdAssign   = "assign"
	cmdUnassign = "unassign"
	cmdName     = "name"
	cmdLatency  = "latency"
)

// Payload shapes for command topics. They mirror the REST request bodies so
// panels can share one encoder.
type (
	volumePayload struct {
		Volume int `json:"volume"`
	}
	mutePayload struct {
		Muted bool `json:"muted"`
	}
	streamPayload struct {
		StreamID string `json:"stream_id"`
	}
	clientPayload struct {
		ClientID string `json:"client_id"`
	}
	namePayload struct {
		Name string `json:"name"`
	}
	latencyPayload struct {
		LatencyMs int `json:"latency_ms"`
	}
)

// MQTTIntake subscribes to the command topic hierarchy and dispatches
// messages to the command service, mirroring the REST surface.
type MQTTIntake struct {
	svc    *Service
	client MQTTSubscriber
	qos    byte
	topics mqtt.Topics
}

// NewMQTTIntake creates an intake bound to a command service.
func NewMQTTIntake(svc *Service, client MQTTSubscriber, qos byte) *MQTTIntake {
	return &MQTTIntake{svc: svc, client: client, qos: qos}
}

// Start subscribes to the zone and client command topics. Subscriptions
// survive broker reconnects via the client's resubscribe handling.
func (i *MQTTIntake) Start() error {
	if err := i.client.Subscribe(i.topics.AllZoneCommands(), i.qos, i.handleMessage); err != nil {
		return fmt.Errorf("subscribing to zone commands: %w", err)
	}
	if err := i.client.Subscribe(i.topics.AllClientCommands(), i.qos, i.handleMessage); err != nil {
		return fmt.Errorf("subscribing to client commands: %w", err)
	}
	return nil
}

// handleMessage parses a command topic and dispatches it. Errors are
// returned to the MQTT client for logging; a bad command on the bus must
// never take the subscription down.
func (i *MQTTIntake) handleMessage(topic string, payload []byte) error {
	kind, entityID, command, err := mqtt.ParseCommandTopic(topic)
	if err != nil {
		return fmt.Errorf("unparseable command topic %q: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	ctx = audit.WithActor(ctx, audit.Actor{Source: audit.SourceMQTT})

	switch kind {
	case "zone":
		return i.dispatchZone(ctx, entityID, command, payload)
	case "client":
		return i.dispatchClient(ctx, entityID, command, payload)
	default:
		return fmt.Errorf("unknown command kind %q", kind)
	}
}

func (i *MQTTIntake) dispatchZone(ctx context.Context, zoneID, command string, payload []byte) error {
	switch command {
	case cmdVolume:
		var p volumePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("zone volume payload: %w", err)
		}
		_, err := i.svc.SetZoneVolume(ctx, zoneID, p.Volume)
		return err

	case cmdMute:
		var p mutePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("zone mute payload: %w", err)
		}
		_, err := i.svc.SetZoneMute(ctx, zoneID, p.Muted)
		return err

	case cmdStream:
		var p streamPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("zone stream payload: %w", err)
		}
		_, err := i.svc.SetZoneStream(ctx, zoneID, p.StreamID)
		return err

	case cmdAssign:
		var p clientPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("zone assign payload: %w", err)
		}
		_, err := i.svc.AssignClient(ctx, zoneID, p.ClientID)
		return err

	case cmdUnassign:
		var p clientPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("zone unassign payload: %w", err)
		}
		_, err := i.svc.UnassignClient(ctx, zoneID, p.ClientID)
		return err

	default:
		return fmt.Errorf("unknown zone command %q", command)
	}
}

func (i *MQTTIntake) dispatchClient(ctx context.Context, clientID, command string, payload []byte) error {
	switch command {
	case cmdVolume:
		var p volumePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("client volume payload: %w", err)
		}
		_, err := i.svc.SetClientVolume(ctx, clientID, p.Volume)
		return err

	case cmdMute:
		var p mutePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("client mute payload: %w", err)
		}
		_, err := i.svc.SetClientMute(ctx, clientID, p.Muted)
		return err

	case cmdName:
		var p namePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("client name payload: %w", err)
		}
		_, err := i.svc.SetClientName(ctx, clientID, p.Name)
		return err

	case cmdLatency:
		var p latencyPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("client latency payload: %w", err)
		}
		_, err := i.svc.SetClientLatency(ctx, clientID, p.LatencyMs)
		return err

	default:
		return fmt.Errorf("unknown client command %q", command)
	}
}
