// Package engine is the resource orchestrator: it plans and executes
// dependency-ordered create and destroy sequences against a cloud provider,
// recording every step in the state store before moving to the next.
package engine

import (
	"time"

	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/state"
)

// DefaultWaitTimeout bounds the readiness poll after creating a
// readiness-bearing resource (load balancer active, scaling group at capacity).
const DefaultWaitTimeout = 5 * time.Minute

// Engine orchestrates deploy, status and destroy for one environment at a
// time. It never caches records across operations: every operation re-reads
// state so an interrupted prior run is picked up where it left off.
type Engine struct {
	store    *state.Store
	provider provider.CloudProvider

	// WaitTimeout bounds each readiness poll.
	WaitTimeout time.Duration
}

// New returns an engine backed by the given store and provider.
func New(store *state.Store, prov provider.CloudProvider) *Engine {
	return &Engine{
		store:       store,
		provider:    prov,
		WaitTimeout: DefaultWaitTimeout,
	}
}
