package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackctl-io/stackctl/internal/config"
	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/provider/fake"
	"github.com/stackctl-io/stackctl/internal/resource"
	"github.com/stackctl-io/stackctl/internal/state"
)

// fullOrder is the creation order of the complete topology with two subnets
// and an object store.
var fullOrder = []resource.Kind{
	resource.KindNetwork,
	resource.KindSubnet,
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
}

func testConfig() *config.Config {
	return &config.Config{
		Region:          "eu-west-1",
		InstanceType:    "t3.micro",
		MinCapacity:     1,
		DesiredCapacity: 2,
		MaxCapacity:     3,
		ScalingPolicy: config.ScalingPolicy{
			Type:              config.PolicyCPU,
			ScaleOutThreshold: 70,
			ScaleInThreshold:  30,
		},
		VPC: config.VPC{
			Cidr:        "10.0.0.0/16",
			SubnetCidrs: []string{"10.0.1.0/24", "10.0.2.0/24"},
		},
		ObjectStore: &config.ObjectStore{Bucket: "demo-assets"},
	}
}

func newTestEngine(t *testing.T) (*Engine, *fake.Provider, *state.Store) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	prov := fake.New()
	eng := New(store, prov)
	eng.WaitTimeout = time.Second
	return eng, prov, store
}

func createdKinds(calls []fake.Call) []resource.Kind {
	var kinds []resource.Kind
	for _, c := range calls {
		kinds = append(kinds, c.Kind)
	}
	return kinds
}

func TestDeploy_FullTopology(t *testing.T) {
	eng, prov, store := newTestEngine(t)
	ctx := context.Background()

	result, err := eng.Deploy(ctx, "prod", testConfig())
	require.NoError(t, err)

	assert.Len(t, result.Created, len(fullOrder))
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Failed)

	// Resources come up in the fixed dependency order.
	assert.Equal(t, fullOrder, createdKinds(prov.CallsOf("create")))

	// Readiness is awaited only for the load balancer and the scaling group.
	waits := prov.CallsOf("wait")
	require.Len(t, waits, 2)
	assert.Equal(t, resource.KindLoadBalancer, waits[0].Kind)
	assert.Equal(t, resource.KindScalingGroup, waits[1].Kind)

	// Every created resource is persisted.
	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Len(t, records, len(fullOrder))

	deployments, err := store.Environments(ctx)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, state.StatusCompleted, deployments[0].Status)
}

func TestDeploy_WithoutObjectStore(t *testing.T) {
	eng, prov, _ := newTestEngine(t)
	cfg := testConfig()
	cfg.ObjectStore = nil

	result, err := eng.Deploy(context.Background(), "prod", cfg)
	require.NoError(t, err)

	assert.Len(t, result.Created, len(fullOrder)-1)
	assert.NotContains(t, createdKinds(prov.CallsOf("create")), resource.KindObjectStore)
}

func TestDeploy_Idempotent(t *testing.T) {
	eng, prov, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, "prod", testConfig())
	require.NoError(t, err)
	before := len(prov.CallsOf("create"))

	result, err := eng.Deploy(ctx, "prod", testConfig())
	require.NoError(t, err)

	assert.Empty(t, result.Created)
	assert.Equal(t, len(fullOrder), result.Skipped)
	assert.Len(t, prov.CallsOf("create"), before, "second deploy must not create anything")
}

func TestDeploy_PartialFailureThenResume(t *testing.T) {
	eng, prov, store := newTestEngine(t)
	ctx := context.Background()

	// 1. The scaling group creation fails mid-deploy.
	prov.FailCreate[resource.KindScalingGroup] = errors.New("capacity exhausted")

	result, err := eng.Deploy(ctx, "prod", testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create scaling_group failed")
	assert.Equal(t, "create scaling_group", result.Failed)

	// Everything up to and including the launch template is recorded.
	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	require.Len(t, records, len(fullOrder)-2)
	assert.Equal(t, resource.KindLaunchTemplate, records[len(records)-1].Kind)

	deployments, err := store.Environments(ctx)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, state.StatusFailed, deployments[0].Status)

	// 2. Re-running creates only the two missing resources.
	delete(prov.FailCreate, resource.KindScalingGroup)
	before := len(prov.CallsOf("create"))

	result, err = eng.Deploy(ctx, "prod", testConfig())
	require.NoError(t, err)
	assert.Len(t, result.Created, 2)
	assert.Equal(t, resource.KindScalingGroup, result.Created[0].Kind)
	assert.Equal(t, resource.KindScalingPolicy, result.Created[1].Kind)
	assert.Equal(t, len(fullOrder)-2, result.Skipped)

	created := prov.CallsOf("create")[before:]
	require.Len(t, created, 2)
	records, err = store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Len(t, records, len(fullOrder))
}

func TestDeploy_ReadinessTimeout(t *testing.T) {
	eng, prov, store := newTestEngine(t)
	ctx := context.Background()

	prov.NeverReady[resource.KindScalingGroup] = true

	result, err := eng.Deploy(ctx, "prod", testConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrTimedOut)
	assert.Equal(t, "create scaling_group", result.Failed)

	// The group was created and must be recorded even though it never became
	// ready, so destroy can still find it.
	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, resource.KindScalingGroup, records[len(records)-1].Kind)
}

func TestDestroy_ReverseOrder(t *testing.T) {
	eng, prov, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, "prod", testConfig())
	require.NoError(t, err)

	result, err := eng.Destroy(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, len(fullOrder), result.Removed)

	// Deletion is the exact reverse of creation.
	deleted := createdKinds(prov.CallsOf("delete"))
	require.Len(t, deleted, len(fullOrder))
	for i, kind := range fullOrder {
		assert.Equal(t, kind, deleted[len(deleted)-1-i])
	}
	assert.Equal(t, resource.KindScalingPolicy, deleted[0])
	assert.Equal(t, resource.KindNetwork, deleted[len(deleted)-1])

	// Nothing is left, on the provider or in state.
	assert.Zero(t, prov.Live())
	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Empty(t, records)

	deployments, err := store.Environments(ctx)
	require.NoError(t, err)
	assert.Empty(t, deployments)
}

func TestDestroy_EmptyEnvironment(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	result, err := eng.Destroy(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Zero(t, result.Removed)
}

func TestDestroy_AlreadyGoneResources(t *testing.T) {
	eng, prov, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, "prod", testConfig())
	require.NoError(t, err)

	// Someone deleted the load balancer out-of-band.
	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	for _, rec := range records {
		if rec.Kind == resource.KindLoadBalancer {
			prov.Gone[rec.ProviderID] = true
		}
	}

	result, err := eng.Destroy(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, len(fullOrder), result.Removed)

	records, err = store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDestroy_FailureThenResume(t *testing.T) {
	eng, prov, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, "prod", testConfig())
	require.NoError(t, err)

	// 1. Deleting the listener fails; everything after it in the deletion
	// order must remain recorded.
	prov.FailDelete[resource.KindListener] = errors.New("api unavailable")

	result, err := eng.Destroy(ctx, "prod")
	require.Error(t, err)
	assert.Equal(t, "delete listener", result.Failed)
	assert.Equal(t, 3, result.Removed) // scaling_policy, scaling_group, launch_template

	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Len(t, records, len(fullOrder)-3)

	// 2. Re-running finishes the teardown.
	delete(prov.FailDelete, resource.KindListener)

	result, err = eng.Destroy(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, len(fullOrder)-3, result.Removed)

	records, err = store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStatus_Healthy(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, "prod", testConfig())
	require.NoError(t, err)

	report, err := eng.Status(ctx, "prod")
	require.NoError(t, err)

	assert.True(t, report.Healthy)
	assert.Len(t, report.Resources, len(fullOrder))
	for _, res := range report.Resources {
		assert.Equal(t, HealthOK, res.Health, "resource %s %s", res.Kind, res.ProviderID)
	}

	// The scaling group reports its capacity.
	var asg *ResourceStatus
	for i := range report.Resources {
		if report.Resources[i].Kind == resource.KindScalingGroup {
			asg = &report.Resources[i]
		}
	}
	require.NotNil(t, asg)
	assert.Equal(t, "desired=2 in_service=2", asg.Detail)
}

func TestStatus_DegradesWithoutAborting(t *testing.T) {
	eng, prov, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Deploy(ctx, "prod", testConfig())
	require.NoError(t, err)

	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	for _, rec := range records {
		if rec.Kind == resource.KindTargetGroup {
			prov.Gone[rec.ProviderID] = true
		}
	}
	prov.FailDescribe[resource.KindListener] = errors.New("api unavailable")

	report, err := eng.Status(ctx, "prod")
	require.NoError(t, err, "status must not abort on per-resource errors")

	assert.False(t, report.Healthy)
	assert.Len(t, report.Resources, len(fullOrder))

	unknown := 0
	for _, res := range report.Resources {
		if res.Health == HealthUnknown {
			unknown++
		}
	}
	assert.Equal(t, 2, unknown)
}

func TestStatus_EmptyEnvironment(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	report, err := eng.Status(context.Background(), "ghost")
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	assert.Empty(t, report.Resources)
}
