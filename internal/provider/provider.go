// Package provider defines the contract between the orchestration engine and a
// cloud provider. The engine only ever talks to the CloudProvider interface;
// everything provider-specific lives behind it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stackctl-io/stackctl/internal/resource"
)

var (
	// ErrNotFound reports that the target of a describe or delete no longer
	// exists on the provider side. Benign during destroy.
	ErrNotFound = errors.New("resource not found")

	// ErrTimedOut reports that a readiness poll exceeded its bound. The
	// resource exists but was never confirmed ready.
	ErrTimedOut = errors.New("timed out waiting for resource readiness")
)

// Error is a provider-rejected call. Code carries the provider's own error
// code when one is available.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Created is the result of a successful create call.
type Created struct {
	// ID is the provider-assigned identifier (VPC id, ARN, ASG name, ...).
	ID string
	// Attributes are the cross-references dependents and teardown will need.
	Attributes map[string]string
}

// CloudProvider is the adapter over the cloud provider's resource APIs. One
// implementation talks to AWS; the fake implementation drives tests.
//
// Implementations are responsible for retrying transient failures; callers
// treat every returned error as final for the current operation.
type CloudProvider interface {
	// Create provisions one resource of the given kind. name is a
	// provider-visible label derived from the environment; inputs carry the
	// configuration values and prerequisite attributes the kind needs.
	Create(ctx context.Context, kind resource.Kind, name string, inputs map[string]string) (*Created, error)

	// Describe reports the live attributes of a resource, or ErrNotFound.
	Describe(ctx context.Context, kind resource.Kind, id string) (map[string]string, error)

	// Delete removes a resource. attrs are the attributes recorded at create
	// time; kinds composed of several provider objects need them for a full
	// teardown. Returns ErrNotFound when the resource is already gone.
	Delete(ctx context.Context, kind resource.Kind, id string, attrs map[string]string) error

	// WaitReady polls until the resource is usable by dependents or the
	// timeout elapses (ErrTimedOut). Only called for readiness-bearing kinds.
	WaitReady(ctx context.Context, kind resource.Kind, id string, timeout time.Duration) error
}
