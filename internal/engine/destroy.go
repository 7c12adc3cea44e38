package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackctl-io/stackctl/internal/logging"
	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/state"
)

// DestroyResult summarizes one destroy invocation.
type DestroyResult struct {
	Environment string
	// Removed counts records deleted in this invocation.
	Removed int
	// Failed names the step that halted the destroy, or "" on success.
	Failed string
}

// Destroy deletes every tracked resource in reverse creation order. A
// provider-side NotFound counts as success: the resource someone else already
// deleted is still gone. A genuine failure halts; because each removal is
// committed immediately, the next invocation resumes with the remaining
// records.
func (e *Engine) Destroy(ctx context.Context, environment string) (*DestroyResult, error) {
	records, err := e.store.Load(ctx, environment)
	if err != nil {
		return nil, err
	}

	result := &DestroyResult{Environment: environment}
	if len(records) == 0 {
		if err := e.store.RemoveDeployment(ctx, environment); err != nil {
			return result, err
		}
		logging.Info("nothing to destroy", "environment", environment)
		return result, nil
	}

	steps, err := PlanDestroy(records)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.BeginDeployment(ctx, environment, state.StatusDestroying); err != nil {
		return nil, err
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Failed = step.String()
			return result, fmt.Errorf("destroy interrupted before %s: %w", step, err)
		}

		rec := *step.Record
		logging.Info("deleting resource", "environment", environment, "kind", rec.Kind, "id", rec.ProviderID)
		err := e.provider.Delete(ctx, rec.Kind, rec.ProviderID, rec.Attributes)
		if err != nil && !errors.Is(err, provider.ErrNotFound) {
			result.Failed = step.String()
			_ = e.store.SetDeploymentStatus(ctx, environment, state.StatusFailed)
			return result, fmt.Errorf("delete %s %s failed: %w", rec.Kind, rec.ProviderID, err)
		}
		if errors.Is(err, provider.ErrNotFound) {
			logging.Warn("resource already gone", "kind", rec.Kind, "id", rec.ProviderID)
		}

		if err := e.store.Remove(ctx, environment, rec.Kind, rec.ProviderID); err != nil {
			result.Failed = step.String()
			return result, err
		}
		result.Removed++
	}

	remaining, err := e.store.Load(ctx, environment)
	if err != nil {
		return result, err
	}
	if len(remaining) != 0 {
		return result, fmt.Errorf("destroy finished but %d records remain", len(remaining))
	}
	if err := e.store.RemoveDeployment(ctx, environment); err != nil {
		return result, err
	}
	logging.Info("destroy complete", "environment", environment, "removed", result.Removed)
	return result, nil
}
