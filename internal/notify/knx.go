package notify

import (
	"context"
	"fmt"

	"github.com/soundmesh/soundmesh-core/internal/bridges/knx"
)

// KNXZoneAddresses maps one zone's status aspects to group addresses.
// A zero address means the aspect is not wired to the bus.
type KNXZoneAddresses struct {
	Volume  knx.GroupAddress // DPT 5.001
	Mute    knx.GroupAddress // DPT 1.001
	Playing knx.GroupAddress // DPT 1.011
}

// KNXClientAddresses maps one client's status aspects to group addresses.
type KNXClientAddresses struct {
	Volume    knx.GroupAddress // DPT 5.001
	Mute      knx.GroupAddress // DPT 1.001
	Connected knx.GroupAddress // DPT 1.002
}

// KNXPublisher mirrors zone and client status onto the automation bus so
// wall switches and visualisations track the audio system. Entities with
// no configured address are silently skipped; an installation normally
// wires only a subset of the status surface onto the bus.
type KNXPublisher struct {
	bus     knx.BusWriter
	zones   map[string]KNXZoneAddresses
	clients map[string]KNXClientAddresses
}

// NewKNXPublisher creates a publisher writing through bus using the
// configured address maps. Nil maps are treated as empty.
func NewKNXPublisher(bus knx.BusWriter, zones map[string]KNXZoneAddresses, clients map[string]KNXClientAddresses) *KNXPublisher {
	if zones == nil {
		zones = map[string]KNXZoneAddresses{}
	}
	if clients == nil {
		clients = map[string]KNXClientAddresses{}
	}
	return &KNXPublisher{bus: bus, zones: zones, clients: clients}
}

// Name identifies the publisher in logs and counters.
func (p *KNXPublisher) Name() string { return "knx" }

// PublishZoneStatus writes the zone aspects selected by eventType to
// their group addresses. EventStatus refreshes every wired aspect.
func (p *KNXPublisher) PublishZoneStatus(ctx context.Context, zoneID, eventType string, payload any) error {
	addrs, ok := p.zones[zoneID]
	if !ok {
		return nil
	}
	status, ok := payload.(ZoneStatus)
	if !ok {
		return nil
	}

	switch eventType {
	case EventVolume:
		return p.writePercent(ctx, addrs.Volume, status.Volume)
	case EventMute:
		return p.writeBool(ctx, addrs.Mute, status.Muted)
	case EventPlayback, EventStream:
		return p.writeBool(ctx, addrs.Playing, status.Playing)
	case EventStatus:
		if err := p.writePercent(ctx, addrs.Volume, status.Volume); err != nil {
			return err
		}
		if err := p.writeBool(ctx, addrs.Mute, status.Muted); err != nil {
			return err
		}
		return p.writeBool(ctx, addrs.Playing, status.Playing)
	default:
		return nil
	}
}

// PublishClientStatus writes the client aspects selected by eventType.
func (p *KNXPublisher) PublishClientStatus(ctx context.Context, clientID, eventType string, payload any) error {
	addrs, ok := p.clients[clientID]
	if !ok {
		return nil
	}
	status, ok := payload.(ClientStatus)
	if !ok {
		return nil
	}

	switch eventType {
	case EventVolume:
		return p.writePercent(ctx, addrs.Volume, status.Volume)
	case EventMute:
		return p.writeBool(ctx, addrs.Mute, status.Muted)
	case EventStatus:
		if err := p.writePercent(ctx, addrs.Volume, status.Volume); err != nil {
			return err
		}
		if err := p.writeBool(ctx, addrs.Mute, status.Muted); err != nil {
			return err
		}
		return p.writeBool(ctx, addrs.Connected, status.Connected)
	default:
		return nil
	}
}

// PublishGlobalStatus is a no-op: the bus carries per-entity state only.
func (p *KNXPublisher) PublishGlobalStatus(context.Context, string, any) error {
	return nil
}

func (p *KNXPublisher) writeBool(ctx context.Context, ga knx.GroupAddress, value bool) error {
	if ga.IsZero() {
		return nil
	}
	if err := p.bus.WriteGroup(ctx, ga, knx.EncodeBool(value)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, ga, err)
	}
	return nil
}

func (p *KNXPublisher) writePercent(ctx context.Context, ga knx.GroupAddress, percent int) error {
	if ga.IsZero() {
		return nil
	}
	if err := p.bus.WriteGroup(ctx, ga, knx.EncodePercent(percent)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, ga, err)
	}
	return nil
}
