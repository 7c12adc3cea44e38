// Package graph holds the fixed dependency table for the deployment topology
// and derives deterministic creation and deletion orders from it.
package graph

import (
	"fmt"

	"github.com/stackctl-io/stackctl/internal/resource"
)

// prerequisites maps each kind to the kinds that must exist before it can be
// created. The table is static: the topology is fixed, only the subset of
// kinds requested varies per invocation.
var prerequisites = map[resource.Kind][]resource.Kind{
	resource.KindNetwork:              {},
	resource.KindSubnet:               {resource.KindNetwork},
	resource.KindSecurityGroupALB:     {resource.KindNetwork},
	resource.KindSecurityGroupCompute: {resource.KindNetwork, resource.KindSecurityGroupALB},
	resource.KindInstanceRole:         {},
	resource.KindObjectStore:          {},
	resource.KindLoadBalancer:         {resource.KindSubnet, resource.KindSecurityGroupALB},
	resource.KindTargetGroup:          {resource.KindNetwork},
	resource.KindListener:             {resource.KindLoadBalancer, resource.KindTargetGroup},
	resource.KindLaunchTemplate:       {resource.KindSecurityGroupCompute, resource.KindInstanceRole},
	resource.KindScalingGroup:         {resource.KindLaunchTemplate, resource.KindTargetGroup, resource.KindSubnet},
	resource.KindScalingPolicy:        {resource.KindScalingGroup},
}

// Prerequisites returns the declared prerequisites of a kind.
func Prerequisites(kind resource.Kind) []resource.Kind {
	return prerequisites[kind]
}

// CreationOrder returns the requested kinds plus their transitive prerequisites
// in an order where every kind follows all of its prerequisites. Ties are broken
// by declaration order, so the result is identical across runs regardless of the
// order of the input.
func CreationOrder(requested []resource.Kind) ([]resource.Kind, error) {
	included := make(map[resource.Kind]bool)
	var expand func(k resource.Kind) error
	expand = func(k resource.Kind) error {
		if !k.Valid() {
			return fmt.Errorf("unknown resource kind %q", k)
		}
		if included[k] {
			return nil
		}
		included[k] = true
		for _, pre := range prerequisites[k] {
			if err := expand(pre); err != nil {
				return err
			}
		}
		return nil
	}
	for _, k := range requested {
		if err := expand(k); err != nil {
			return nil, err
		}
	}

	return sortStable(included)
}

// DeletionOrder returns the exact reverse of the creation order, restricted to
// the kinds actually present. It never adds kinds that were not requested:
// deleting something never recorded is not this package's call to make.
func DeletionOrder(existing []resource.Kind) ([]resource.Kind, error) {
	present := make(map[resource.Kind]bool, len(existing))
	for _, k := range existing {
		if !k.Valid() {
			return nil, fmt.Errorf("unknown resource kind %q", k)
		}
		present[k] = true
	}

	forward, err := sortStable(present)
	if err != nil {
		return nil, err
	}
	reversed := make([]resource.Kind, len(forward))
	for i, k := range forward {
		reversed[len(forward)-1-i] = k
	}
	return reversed, nil
}

// sortStable runs Kahn's algorithm over the subset of the table selected by
// included, always picking the earliest-declared ready kind next.
func sortStable(included map[resource.Kind]bool) ([]resource.Kind, error) {
	indegree := make(map[resource.Kind]int, len(included))
	for k := range included {
		for _, pre := range prerequisites[k] {
			if included[pre] {
				indegree[k]++
			}
		}
	}

	done := make(map[resource.Kind]bool, len(included))
	order := make([]resource.Kind, 0, len(included))
	for len(order) < len(included) {
		var picked resource.Kind
		for _, k := range resource.Kinds {
			if included[k] && !done[k] && indegree[k] == 0 {
				picked = k
				break
			}
		}
		if picked == "" {
			return nil, fmt.Errorf("dependency cycle detected in resource graph")
		}

		order = append(order, picked)
		done[picked] = true
		for k := range included {
			if done[k] {
				continue
			}
			for _, pre := range prerequisites[k] {
				if pre == picked {
					indegree[k]--
				}
			}
		}
	}

	return order, nil
}
