package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the SoundMesh MQTT surface.
//
// Status topics are published retained so late subscribers immediately see
// current state. Command topics are consumed by the hub and never retained.
const (
	// TopicPrefix is the base for all SoundMesh topics.
	TopicPrefix = "soundmesh"

	// TopicPrefixStatus is the base for retained status topics.
	TopicPrefixStatus = "soundmesh/status"

	// TopicPrefixCommand is the base for inbound command topics.
	TopicPrefixCommand = "soundmesh/command"

	// TopicPrefixSystem is the base for system-level topics.
	TopicPrefixSystem = "soundmesh/system"
)

// Topics provides builders for SoundMesh MQTT topics. Using these helpers
// keeps topic naming consistent between publishers and subscribers.
//
//	topics := mqtt.Topics{}
//	topics.ZoneStatus("kitchen", "volume")
//	// Returns: "soundmesh/status/zone/kitchen/volume"
type Topics struct{}

// ZoneStatus returns the retained status topic for one zone event.
//
// Example: soundmesh/status/zone/kitchen/volume
func (Topics) ZoneStatus(zoneID, event string) string {
	return fmt.Sprintf("%s/zone/%s/%s", TopicPrefixStatus, zoneID, event)
}

// ClientStatus returns the retained status topic for one client event.
//
// Example: soundmesh/status/client/kitchen-left/mute
func (Topics) ClientStatus(clientID, event string) string {
	return fmt.Sprintf("%s/client/%s/%s", TopicPrefixStatus, clientID, event)
}

// GlobalStatus returns the retained status topic for one system-wide event.
//
// Example: soundmesh/status/system/grouping
func (Topics) GlobalStatus(event string) string {
	return fmt.Sprintf("%s/system/%s", TopicPrefixStatus, event)
}

// ZoneCommand returns the command topic for one zone operation.
//
// Example: soundmesh/command/zone/kitchen/volume
func (Topics) ZoneCommand(zoneID, command string) string {
	return fmt.Sprintf("%s/zone/%s/%s", TopicPrefixCommand, zoneID, command)
}

// ClientCommand returns the command topic for one client operation.
//
// Example: soundmesh/command/client/kitchen-left/mute
func (Topics) ClientCommand(clientID, command string) string {
	return fmt.Sprintf("%s/client/%s/%s", TopicPrefixCommand, clientID, command)
}

// SystemStatus returns the hub availability topic, also used as the LWT.
//
// Example: soundmesh/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllZoneCommands returns a pattern matching every zone command.
//
// Pattern: soundmesh/command/zone/+/+
func (Topics) AllZoneCommands() string {
	return fmt.Sprintf("%s/zone/+/+", TopicPrefixCommand)
}

// AllClientCommands returns a pattern matching every client command.
//
// Pattern: soundmesh/command/client/+/+
func (Topics) AllClientCommands() string {
	return fmt.Sprintf("%s/client/+/+", TopicPrefixCommand)
}

// ParseCommandTopic splits a command topic into its entity kind ("zone" or
// "client"), entity ID and command name.
func ParseCommandTopic(topic string) (kind, entityID, command string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0]+"/"+parts[1] != TopicPrefixCommand {
		return "", "", "", fmt.Errorf("not a command topic: %q", topic)
	}
	kind, entityID, command = parts[2], parts[3], parts[4]
	if kind != "zone" && kind != "client" {
		return "", "", "", fmt.Errorf("unknown command entity %q in topic %q", kind, topic)
	}
	if entityID == "" || command == "" {
		return "", "", "", fmt.Errorf("incomplete command topic: %q", topic)
	}
	return kind, entityID, command, nil
}
