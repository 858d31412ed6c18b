package discoveryengine

import "context"

// EventPublisher fans out discovery-run lifecycle events to the Real-Time
// Hub (§4.4 step 1: "emit discovery.started to Real-Time Hub").
type EventPublisher interface {
	Publish(ctx context.Context, organizationID, topic string, payload map[string]any) error
}

// NoopPublisher discards every event; used in tests and in deployments that
// run the engine without the realtime hub attached.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, organizationID, topic string, payload map[string]any) error {
	return nil
}
