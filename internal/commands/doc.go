// Package commands implements the zone and client command operations shared
// by every control surface (REST API, MQTT command topics).
//
// Each operation follows one flow: apply a transform through the state
// store, push the physical side effect to the audio-routing server (best
// effort), enqueue status notifications, and trigger a grouping pass when
// the change affects zone topology. Surfaces only parse their own wire
// format and map the returned errors.
package commands
