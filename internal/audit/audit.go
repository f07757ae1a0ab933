package audit

import (
	"context"
	"time"
)

// Command sources.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// Entity types recorded in the trail.
const (
	EntityZone   = "zone"
	EntityClient = "client"
)

// Entry is one recorded command.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Subject    string         `json:"subject,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Actor identifies where a command came from and, when the surface
// authenticates, who issued it.
type Actor struct {
	// Source is the command surface: SourceAPI or SourceMQTT.
	Source string

	// Subject is the authenticated principal. Empty on unauthenticated
	// surfaces like the MQTT bus.
	Subject string
}

type ctxKey struct{}

// WithActor stamps ctx with the actor executing subsequent commands.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFromContext returns the actor stamped on ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	return actor, ok
}
