package commands

import (
	"testing"

	"github.com/soundmesh/soundmesh-core/internal/audit"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/mqtt"
)

// fakeSubscriber records subscriptions and exposes the handler for direct
// dispatch, standing in for a connected broker.
type fakeSubscriber struct {
	topics  []string
	handler mqtt.MessageHandler
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.topics = append(f.topics, topic)
	f.handler = handler
	return nil
}

func testIntake(t *testing.T) (*MQTTIntake, *fakeSubscriber, *Service, *recordingTrigger) {
	t.Helper()

	states := seededStore(t)
	trigger := &recordingTrigger{}
	svc := New(states, &recordingControl{}, &recordingNotifier{}, trigger)
	sub := &fakeSubscriber{}
	intake := NewMQTTIntake(svc, sub, 1)
	if err := intake.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return intake, sub, svc, trigger
}

func TestIntakeSubscribesCommandHierarchy(t *testing.T) {
	_, sub, _, _ := testIntake(t)

	if len(sub.topics) != 2 {
		t.Fatalf("subscriptions = %v, want zone and client command filters", sub.topics)
	}
	want := mqtt.Topics{}
	if sub.topics[0] != want.AllZoneCommands() || sub.topics[1] != want.AllClientCommands() {
		t.Errorf("subscriptions = %v, want [%s %s]", sub.topics, want.AllZoneCommands(), want.AllClientCommands())
	}
}

func TestIntakeZoneVolume(t *testing.T) {
	intake, _, svc, _ := testIntake(t)

	err := intake.handleMessage("soundmesh/command/zone/ground/volume", []byte(`{"volume":65}`))
	if err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	sys, _ := svc.states.Current()
	if sys.Zones["ground"].Volume != 65 {
		t.Errorf("zone volume = %d, want 65", sys.Zones["ground"].Volume)
	}
	if sys.Clients["client-a"].Volume != 65 {
		t.Error("member clients should follow the zone volume")
	}
}

func TestIntakeZoneStream(t *testing.T) {
	intake, _, svc, trigger := testIntake(t)

	err := intake.handleMessage("soundmesh/command/zone/ground/stream", []byte(`{"stream_id":"spotify"}`))
	if err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	sys, _ := svc.states.Current()
	if sys.Zones["ground"].CurrentStreamID != "spotify" {
		t.Errorf("stream = %s, want spotify", sys.Zones["ground"].CurrentStreamID)
	}
	if trigger.triggers() != 1 {
		t.Errorf("triggers = %d, want 1", trigger.triggers())
	}
}

func TestIntakeZoneAssign(t *testing.T) {
	intake, _, svc, _ := testIntake(t)

	err := intake.handleMessage("soundmesh/command/zone/ground/assign", []byte(`{"client_id":"client-c"}`))
	if err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	sys, _ := svc.states.Current()
	if sys.Clients["client-c"].ZoneID != "ground" {
		t.Errorf("client zone = %s, want ground", sys.Clients["client-c"].ZoneID)
	}
}

func TestIntakeClientMute(t *testing.T) {
	intake, _, svc, _ := testIntake(t)

	err := intake.handleMessage("soundmesh/command/client/client-b/mute", []byte(`{"muted":true}`))
	if err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	sys, _ := svc.states.Current()
	if !sys.Clients["client-b"].Muted {
		t.Error("client should be muted")
	}
}

func TestIntakeRejectsBadTopic(t *testing.T) {
	intake, _, _, _ := testIntake(t)

	if err := intake.handleMessage("soundmesh/status/zone/ground", []byte(`{}`)); err == nil {
		t.Error("non-command topic should be rejected")
	}
	if err := intake.handleMessage("soundmesh/command/zone/ground/selfdestruct", []byte(`{}`)); err == nil {
		t.Error("unknown command should be rejected")
	}
}

func TestIntakeRejectsMalformedPayload(t *testing.T) {
	intake, _, svc, _ := testIntake(t)

	if err := intake.handleMessage("soundmesh/command/zone/ground/volume", []byte(`not json`)); err == nil {
		t.Error("malformed payload should be rejected")
	}

	sys, _ := svc.states.Current()
	if sys.Zones["ground"].Volume != 40 {
		t.Error("rejected command must not change state")
	}
}

func TestIntakeStampsBusActor(t *testing.T) {
	intake, _, svc, _ := testIntake(t)
	auditor := &recordingAuditor{}
	svc.SetAuditor(auditor)

	if err := intake.handleMessage("soundmesh/command/zone/ground/volume", []byte(`{"volume":55}`)); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	entries := auditor.recorded()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Source != audit.SourceMQTT || entries[0].Subject != "" {
		t.Errorf("actor = %s/%q, want mqtt with no subject", entries[0].Source, entries[0].Subject)
	}
}

func TestIntakeCommandErrorDoesNotPanic(t *testing.T) {
	intake, _, _, _ := testIntake(t)

	// Unknown entity IDs surface as errors for the MQTT client to log.
	if err := intake.handleMessage("soundmesh/command/zone/attic/volume", []byte(`{"volume":10}`)); err == nil {
		t.Error("unknown zone should surface an error")
	}
}
