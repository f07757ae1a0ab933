package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soundmesh/soundmesh-core/internal/infrastructure/mqtt"
)

// MQTTClient is the slice of the MQTT infrastructure client the publisher
// needs. Satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MQTTPublisher announces status changes on retained broker topics so
// late subscribers immediately see current state.
type MQTTPublisher struct {
	client MQTTClient
	topics mqtt.Topics
	qos    byte
}

// NewMQTTPublisher creates a publisher using the given QoS for all
// status topics.
func NewMQTTPublisher(client MQTTClient, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, qos: qos}
}

// Name identifies the publisher in logs and counters.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// PublishZoneStatus publishes a retained zone status message.
func (p *MQTTPublisher) PublishZoneStatus(ctx context.Context, zoneID, eventType string, payload any) error {
	return p.publish(ctx, p.topics.ZoneStatus(zoneID, eventType), payload)
}

// PublishClientStatus publishes a retained client status message.
func (p *MQTTPublisher) PublishClientStatus(ctx context.Context, clientID, eventType string, payload any) error {
	return p.publish(ctx, p.topics.ClientStatus(clientID, eventType), payload)
}

// PublishGlobalStatus publishes a retained system-wide status message.
func (p *MQTTPublisher) PublishGlobalStatus(ctx context.Context, eventType string, payload any) error {
	return p.publish(ctx, p.topics.GlobalStatus(eventType), payload)
}

func (p *MQTTPublisher) publish(ctx context.Context, topic string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode for %s: %w", ErrPublishFailed, topic, err)
	}
	if err := p.client.Publish(topic, body, p.qos, true); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
