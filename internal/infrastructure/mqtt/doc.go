// Package mqtt connects the hub to its broker.
//
// The hub speaks two topic hierarchies: retained status topics it publishes
// for every zone and client (soundmesh/status/...), and a parallel command
// hierarchy it subscribes to (soundmesh/command/...), so wall panels and
// automation rules can both observe and drive the hub without touching the
// REST API. A retained last-will on soundmesh/system/status flips to
// "offline" if the hub dies uncleanly.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil { ... }
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.AllZoneCommands(), 1, handle)
//	client.Publish(mqtt.Topics{}.ZoneStatus("kitchen", "volume"),
//	    []byte(`{"volume":35}`), 1, true)
//
// Subscriptions survive reconnects; the client re-subscribes everything and
// republishes the retained online status each time the session returns.
// Enable cfg.Broker.TLS outside of local development.
package mqtt
