package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/soundmesh/soundmesh-core/internal/bridges/knx"
)

// ─── MQTT Publisher ───

type fakeMQTT struct {
	mu       sync.Mutex
	messages []fakeMessage
	fail     error
}

type fakeMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (f *fakeMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.messages = append(f.messages, fakeMessage{topic, payload, qos, retained})
	return nil
}

func (f *fakeMQTT) IsConnected() bool { return true }

func TestMQTTPublisherTopicsAndRetention(t *testing.T) {
	client := &fakeMQTT{}
	pub := NewMQTTPublisher(client, 1)
	ctx := context.Background()

	if err := pub.PublishZoneStatus(ctx, "kitchen", EventVolume, ZoneStatus{ZoneID: "kitchen", Volume: 35}); err != nil {
		t.Fatalf("PublishZoneStatus: %v", err)
	}
	if err := pub.PublishClientStatus(ctx, "kitchen-left", EventMute, ClientStatus{ClientID: "kitchen-left", Muted: true}); err != nil {
		t.Fatalf("PublishClientStatus: %v", err)
	}
	if err := pub.PublishGlobalStatus(ctx, EventStatus, SystemStatus{Status: "running"}); err != nil {
		t.Fatalf("PublishGlobalStatus: %v", err)
	}

	if len(client.messages) != 3 {
		t.Fatalf("published %d messages, want 3", len(client.messages))
	}

	wantTopics := []string{
		"soundmesh/status/zone/kitchen/volume",
		"soundmesh/status/client/kitchen-left/mute",
		"soundmesh/status/system/status",
	}
	for i, msg := range client.messages {
		if msg.topic != wantTopics[i] {
			t.Errorf("message %d topic = %q, want %q", i, msg.topic, wantTopics[i])
		}
		if !msg.retained {
			t.Errorf("message %d not retained", i)
		}
		if msg.qos != 1 {
			t.Errorf("message %d qos = %d, want 1", i, msg.qos)
		}
	}

	var zone ZoneStatus
	if err := json.Unmarshal(client.messages[0].payload, &zone); err != nil {
		t.Fatalf("zone payload not JSON: %v", err)
	}
	if zone.Volume != 35 || zone.ZoneID != "kitchen" {
		t.Errorf("zone payload = %+v", zone)
	}
}

func TestMQTTPublisherWrapsFailure(t *testing.T) {
	client := &fakeMQTT{fail: errors.New("broker gone")}
	pub := NewMQTTPublisher(client, 1)

	err := pub.PublishZoneStatus(context.Background(), "kitchen", EventVolume, ZoneStatus{})
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("err = %v, want ErrPublishFailed", err)
	}
}

// ─── KNX Publisher ───

type fakeBus struct {
	mu     sync.Mutex
	writes []busWrite
	fail   error
}

type busWrite struct {
	ga   knx.GroupAddress
	data []byte
}

func (f *fakeBus) WriteGroup(_ context.Context, ga knx.GroupAddress, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.writes = append(f.writes, busWrite{ga, append([]byte(nil), data...)})
	return nil
}

func (f *fakeBus) IsConnected() bool { return true }
func (f *fakeBus) Close() error      { return nil }

func mustGA(t *testing.T, s string) knx.GroupAddress {
	t.Helper()
	ga, err := knx.ParseGroupAddress(s)
	if err != nil {
		t.Fatalf("ParseGroupAddress(%q): %v", s, err)
	}
	return ga
}

func TestKNXPublisherZoneEvents(t *testing.T) {
	bus := &fakeBus{}
	zones := map[string]KNXZoneAddresses{
		"kitchen": {
			Volume:  mustGA(t, "2/1/1"),
			Mute:    mustGA(t, "2/1/2"),
			Playing: mustGA(t, "2/1/3"),
		},
	}
	pub := NewKNXPublisher(bus, zones, nil)
	ctx := context.Background()
	status := ZoneStatus{ZoneID: "kitchen", Volume: 50, Muted: true, Playing: true}

	if err := pub.PublishZoneStatus(ctx, "kitchen", EventVolume, status); err != nil {
		t.Fatalf("volume event: %v", err)
	}
	if err := pub.PublishZoneStatus(ctx, "kitchen", EventMute, status); err != nil {
		t.Fatalf("mute event: %v", err)
	}

	if len(bus.writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(bus.writes))
	}
	if bus.writes[0].ga != zones["kitchen"].Volume || !bytes.Equal(bus.writes[0].data, []byte{0x80}) {
		t.Errorf("volume write = %v % X", bus.writes[0].ga, bus.writes[0].data)
	}
	if bus.writes[1].ga != zones["kitchen"].Mute || !bytes.Equal(bus.writes[1].data, []byte{0x01}) {
		t.Errorf("mute write = %v % X", bus.writes[1].ga, bus.writes[1].data)
	}
}

func TestKNXPublisherFullStatusRefresh(t *testing.T) {
	bus := &fakeBus{}
	zones := map[string]KNXZoneAddresses{
		"kitchen": {
			Volume:  mustGA(t, "2/1/1"),
			Mute:    mustGA(t, "2/1/2"),
			Playing: mustGA(t, "2/1/3"),
		},
	}
	pub := NewKNXPublisher(bus, zones, nil)

	status := ZoneStatus{Volume: 100, Muted: false, Playing: true}
	if err := pub.PublishZoneStatus(context.Background(), "kitchen", EventStatus, status); err != nil {
		t.Fatalf("status event: %v", err)
	}

	if len(bus.writes) != 3 {
		t.Fatalf("writes = %d, want 3 (volume, mute, playing)", len(bus.writes))
	}
	if !bytes.Equal(bus.writes[0].data, []byte{0xFF}) {
		t.Errorf("volume byte = % X, want FF", bus.writes[0].data)
	}
	if !bytes.Equal(bus.writes[1].data, []byte{0x00}) {
		t.Errorf("mute byte = % X, want 00", bus.writes[1].data)
	}
	if !bytes.Equal(bus.writes[2].data, []byte{0x01}) {
		t.Errorf("playing byte = % X, want 01", bus.writes[2].data)
	}
}

func TestKNXPublisherSkipsUnwiredEntities(t *testing.T) {
	bus := &fakeBus{}
	// Only the mute aspect is wired; volume has no address.
	zones := map[string]KNXZoneAddresses{
		"kitchen": {Mute: mustGA(t, "2/1/2")},
	}
	pub := NewKNXPublisher(bus, zones, nil)
	ctx := context.Background()

	if err := pub.PublishZoneStatus(ctx, "kitchen", EventVolume, ZoneStatus{Volume: 10}); err != nil {
		t.Fatalf("unwired aspect: %v", err)
	}
	if err := pub.PublishZoneStatus(ctx, "hallway", EventMute, ZoneStatus{}); err != nil {
		t.Fatalf("unknown zone: %v", err)
	}
	if err := pub.PublishGlobalStatus(ctx, EventStatus, SystemStatus{}); err != nil {
		t.Fatalf("global: %v", err)
	}
	if len(bus.writes) != 0 {
		t.Errorf("writes = %v, want none", bus.writes)
	}
}

func TestKNXPublisherClientStatus(t *testing.T) {
	bus := &fakeBus{}
	clients := map[string]KNXClientAddresses{
		"kitchen-left": {
			Volume:    mustGA(t, "3/1/1"),
			Mute:      mustGA(t, "3/1/2"),
			Connected: mustGA(t, "3/1/3"),
		},
	}
	pub := NewKNXPublisher(bus, nil, clients)

	status := ClientStatus{Volume: 0, Muted: true, Connected: false}
	if err := pub.PublishClientStatus(context.Background(), "kitchen-left", EventStatus, status); err != nil {
		t.Fatalf("client status: %v", err)
	}

	if len(bus.writes) != 3 {
		t.Fatalf("writes = %d, want 3", len(bus.writes))
	}
	if !bytes.Equal(bus.writes[2].data, []byte{0x00}) {
		t.Errorf("connected byte = % X, want 00", bus.writes[2].data)
	}
}

func TestKNXPublisherWrapsBusFailure(t *testing.T) {
	bus := &fakeBus{fail: errors.New("bus down")}
	zones := map[string]KNXZoneAddresses{"kitchen": {Mute: mustGA(t, "2/1/2")}}
	pub := NewKNXPublisher(bus, zones, nil)

	err := pub.PublishZoneStatus(context.Background(), "kitchen", EventMute, ZoneStatus{Muted: true})
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("err = %v, want ErrPublishFailed", err)
	}
}
