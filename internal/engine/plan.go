package engine

import (
	"fmt"

	"github.com/stackctl-io/stackctl/internal/config"
	"github.com/stackctl-io/stackctl/internal/graph"
	"github.com/stackctl-io/stackctl/internal/resource"
)

// Action is what a plan step does.
type Action string

const (
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// Step is one unit of a plan. For multi-instance kinds (subnets) Index selects
// the configured instance; for deletes, Record identifies the target.
type Step struct {
	Action Action
	Kind   resource.Kind
	Index  int
	Record *resource.Record
}

func (s Step) String() string {
	if s.Kind.Multi() && s.Action == ActionCreate {
		return fmt.Sprintf("%s %s[%d]", s.Action, s.Kind, s.Index)
	}
	return fmt.Sprintf("%s %s", s.Action, s.Kind)
}

// PlanDeploy computes the ordered create steps still missing from the given
// records. Kinds already recorded are skipped, which is what makes re-running
// deploy after a partial failure resume instead of duplicate.
func PlanDeploy(records []resource.Record, cfg *config.Config) ([]Step, error) {
	requested := make([]resource.Kind, 0, len(resource.Kinds))
	for _, k := range resource.Kinds {
		if k == resource.KindObjectStore && cfg.ObjectStore == nil {
			continue
		}
		requested = append(requested, k)
	}

	order, err := graph.CreationOrder(requested)
	if err != nil {
		return nil, err
	}

	existingSubnets := make(map[string]bool)
	existing := make(map[resource.Kind]bool)
	for _, rec := range records {
		existing[rec.Kind] = true
		if rec.Kind == resource.KindSubnet {
			existingSubnets[rec.Attr(resource.AttrCidr)] = true
		}
	}

	var steps []Step
	for _, kind := range order {
		if kind == resource.KindSubnet {
			for i, cidr := range cfg.VPC.SubnetCidrs {
				if !existingSubnets[cidr] {
					steps = append(steps, Step{Action: ActionCreate, Kind: kind, Index: i})
				}
			}
			continue
		}
		if !existing[kind] {
			steps = append(steps, Step{Action: ActionCreate, Kind: kind})
		}
	}
	return steps, nil
}

// PlanDestroy computes the ordered delete steps for every record present, in
// exact reverse creation order. Kinds never recorded never appear.
func PlanDestroy(records []resource.Record) ([]Step, error) {
	kinds := make([]resource.Kind, 0, len(records))
	byKind := make(map[resource.Kind][]resource.Record)
	for _, rec := range records {
		if _, seen := byKind[rec.Kind]; !seen {
			kinds = append(kinds, rec.Kind)
		}
		byKind[rec.Kind] = append(byKind[rec.Kind], rec)
	}

	order, err := graph.DeletionOrder(kinds)
	if err != nil {
		return nil, err
	}

	var steps []Step
	for _, kind := range order {
		// Within a kind, delete newest first.
		recs := byKind[kind]
		for i := len(recs) - 1; i >= 0; i-- {
			rec := recs[i]
			steps = append(steps, Step{Action: ActionDelete, Kind: kind, Record: &rec})
		}
	}
	return steps, nil
}
