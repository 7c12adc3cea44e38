package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackctl-io/stackctl/internal/resource"
)

func TestCreationOrder_FullTopology(t *testing.T) {
	order, err := CreationOrder(resource.Kinds)
	require.NoError(t, err)

	// The full topology always comes out in the same fixed order.
	assert.Equal(t, []resource.Kind{
		resource.KindNetwork,
		resource.KindSubnet,
		resource.KindSecurityGroupALB,
		resource.KindSecurityGroupCompute,
		resource.KindInstanceRole,
		resource.KindObjectStore,
		resource.KindLoadBalancer,
		resource.KindTargetGroup,
		resource.KindListener,
		resource.KindLaunchTemplate,
		resource.KindScalingGroup,
		resource.KindScalingPolicy,
	}, order)
}

func TestCreationOrder_ExpandsPrerequisites(t *testing.T) {
	// Requesting only the listener drags in everything it transitively needs,
	// and nothing else.
	order, err := CreationOrder([]resource.Kind{resource.KindListener})
	require.NoError(t, err)

	assert.Equal(t, []resource.Kind{
		resource.KindNetwork,
		resource.KindSubnet,
		resource.KindSecurityGroupALB,
		resource.KindLoadBalancer,
		resource.KindTargetGroup,
		resource.KindListener,
	}, order)
	assert.NotContains(t, order, resource.KindScalingGroup)
	assert.NotContains(t, order, resource.KindObjectStore)
}

func TestCreationOrder_Deterministic(t *testing.T) {
	// Input order must not matter.
	forward, err := CreationOrder(resource.Kinds)
	require.NoError(t, err)

	shuffled := make([]resource.Kind, len(resource.Kinds))
	for i, k := range resource.Kinds {
		shuffled[len(resource.Kinds)-1-i] = k
	}
	backward, err := CreationOrder(shuffled)
	require.NoError(t, err)

	assert.Equal(t, forward, backward)
}

func TestCreationOrder_UnknownKind(t *testing.T) {
	_, err := CreationOrder([]resource.Kind{"volcano"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource kind")
}

func TestDeletionOrder_ReversesCreation(t *testing.T) {
	creation, err := CreationOrder(resource.Kinds)
	require.NoError(t, err)

	deletion, err := DeletionOrder(resource.Kinds)
	require.NoError(t, err)

	require.Len(t, deletion, len(creation))
	for i, k := range creation {
		assert.Equal(t, k, deletion[len(deletion)-1-i])
	}
	assert.Equal(t, resource.KindScalingPolicy, deletion[0])
	assert.Equal(t, resource.KindNetwork, deletion[len(deletion)-1])
}

func TestDeletionOrder_SubsetOnly(t *testing.T) {
	// A partially deployed environment deletes only what exists, still in
	// reverse dependency order.
	deletion, err := DeletionOrder([]resource.Kind{
		resource.KindNetwork,
		resource.KindSubnet,
		resource.KindSecurityGroupALB,
	})
	require.NoError(t, err)

	assert.Equal(t, []resource.Kind{
		resource.KindSecurityGroupALB,
		resource.KindSubnet,
		resource.KindNetwork,
	}, deletion)
}

func TestPrerequisites(t *testing.T) {
	assert.Empty(t, Prerequisites(resource.KindNetwork))
	assert.Equal(t, []resource.Kind{resource.KindScalingGroup}, Prerequisites(resource.KindScalingPolicy))
	assert.Contains(t, Prerequisites(resource.KindScalingGroup), resource.KindLaunchTemplate)
}
