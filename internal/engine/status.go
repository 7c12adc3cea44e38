package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
)

// Health states reported per resource.
const (
	HealthOK      = "ok"
	HealthUnknown = "unknown"
)

// ResourceStatus is the live view of one tracked resource.
type ResourceStatus struct {
	Kind       resource.Kind
	ProviderID string
	Health     string
	Detail     string
}

// StatusReport is the live view of a whole environment. Healthy is true only
// when every tracked resource answered its describe call.
type StatusReport struct {
	Environment string
	Resources   []ResourceStatus
	Healthy     bool
}

// Status describes every tracked resource without mutating anything. A single
// unreachable resource degrades to "unknown" and the report continues; status
// is diagnostic, not authoritative.
func (e *Engine) Status(ctx context.Context, environment string) (*StatusReport, error) {
	records, err := e.store.Load(ctx, environment)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{Environment: environment, Healthy: true}
	for _, rec := range records {
		rs := ResourceStatus{Kind: rec.Kind, ProviderID: rec.ProviderID, Health: HealthOK}

		attrs, err := e.provider.Describe(ctx, rec.Kind, rec.ProviderID)
		switch {
		case errors.Is(err, provider.ErrNotFound):
			rs.Health = HealthUnknown
			rs.Detail = "not found on provider"
			report.Healthy = false
		case err != nil:
			rs.Health = HealthUnknown
			rs.Detail = err.Error()
			report.Healthy = false
		default:
			rs.Detail = statusDetail(rec, attrs)
		}
		report.Resources = append(report.Resources, rs)
	}
	return report, nil
}

func statusDetail(rec resource.Record, attrs map[string]string) string {
	switch rec.Kind {
	case resource.KindLoadBalancer:
		if dns := attrs[resource.AttrDNSName]; dns != "" {
			if st := attrs["state"]; st != "" {
				return fmt.Sprintf("%s (%s)", dns, st)
			}
			return dns
		}
	case resource.KindScalingGroup:
		desired := attrs[provider.InputDesiredCapacity]
		inService := attrs["in_service"]
		if desired != "" || inService != "" {
			return fmt.Sprintf("desired=%s in_service=%s", desired, inService)
		}
	case resource.KindTargetGroup:
		if h := attrs["healthy_targets"]; h != "" {
			return "healthy targets: " + h
		}
	}
	return ""
}
