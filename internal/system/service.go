// Package system defines the lifecycle contract every long-running
// component (discovery engine, connection manager scheduler, realtime hub)
// implements, plus the descriptor taxonomy used to self-document the
// running process's architecture.
package system

import "context"

// Service is a lifecycle-managed component. Every long-running module
// implements this so the process entrypoint can start and stop them
// deterministically, in the order they were registered and the reverse
// order on shutdown.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider optionally advertises service metadata.
type DescriptorProvider interface {
	Descriptor() Descriptor
}

// Layer describes the architectural slice a service belongs to, mirroring
// §2's component list: ingestion at the edge, adapters translating external
// platforms, engines doing the core detection work, data behind them, and
// security wrapping the credential path.
type Layer string

const (
	LayerIngress  Layer = "ingress"
	LayerAdapter  Layer = "adapter"
	LayerEngine   Layer = "engine"
	LayerData     Layer = "data"
	LayerSecurity Layer = "security"
)

// Descriptor advertises a service's placement and capabilities. Purely
// informational: it never changes runtime behavior, but lets an operations
// endpoint (or a future admin UI) enumerate what's running.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy of the descriptor with capabilities appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}
