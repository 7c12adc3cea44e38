package state

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackctl-io/stackctl/internal/resource"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(kind resource.Kind, id string) resource.Record {
	return resource.Record{
		Kind:       kind,
		ProviderID: id,
		CreatedAt:  time.Now().UTC(),
		Attributes: map[string]string{resource.AttrVpcID: "vpc-123"},
	}
}

func TestStore_AppendLoadRemove(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, store.Append(ctx, "prod", record(resource.KindNetwork, "vpc-123")))
	require.NoError(t, store.Append(ctx, "prod", record(resource.KindSubnet, "subnet-1")))
	require.NoError(t, store.Append(ctx, "prod", record(resource.KindSubnet, "subnet-2")))

	records, err = store.Load(ctx, "prod")
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Insertion order is preserved.
	assert.Equal(t, resource.KindNetwork, records[0].Kind)
	assert.Equal(t, "subnet-1", records[1].ProviderID)
	assert.Equal(t, "subnet-2", records[2].ProviderID)
	assert.Equal(t, "vpc-123", records[0].Attr(resource.AttrVpcID))
	assert.Equal(t, "prod", records[0].Environment)

	exists, err := store.Exists(ctx, "prod")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Remove(ctx, "prod", resource.KindSubnet, "subnet-1"))
	records, err = store.Load(ctx, "prod")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "subnet-2", records[1].ProviderID)
}

func TestStore_AppendIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := record(resource.KindNetwork, "vpc-123")
	require.NoError(t, store.Append(ctx, "prod", rec))
	rec.Attributes[resource.AttrCidr] = "10.0.0.0/16"
	require.NoError(t, store.Append(ctx, "prod", rec))

	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.0.0.0/16", records[0].Attr(resource.AttrCidr))
}

func TestStore_EnvironmentsAreIsolated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "prod", record(resource.KindNetwork, "vpc-prod")))
	require.NoError(t, store.Append(ctx, "staging", record(resource.KindNetwork, "vpc-staging")))

	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "vpc-prod", records[0].ProviderID)

	exists, err := store.Exists(ctx, "qa")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "prod", record(resource.KindNetwork, "vpc-123")))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	records, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "vpc-123", records[0].ProviderID)
}

func TestStore_CorruptAttributes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO resources (environment, kind, provider_id, created_at, attributes)
		VALUES ('prod', 'network', 'vpc-123', ?, '{not json')`,
		time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, err)

	_, err = store.Load(ctx, "prod")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_CorruptKind(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO resources (environment, kind, provider_id, created_at, attributes)
		VALUES ('prod', 'mainframe', 'mf-1', ?, '{}')`,
		time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, err)

	_, err = store.Load(ctx, "prod")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_WALMode(t *testing.T) {
	store := openTestStore(t)

	// The DSN pragmas must actually reach the driver.
	var mode string
	require.NoError(t, store.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	var timeout int
	require.NoError(t, store.db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestStore_Deployments(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.BeginDeployment(ctx, "prod", StatusInProgress)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// A second begin keeps the original deployment id.
	again, err := store.BeginDeployment(ctx, "prod", StatusDestroying)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.NoError(t, store.SetDeploymentStatus(ctx, "prod", StatusCompleted))

	deployments, err := store.Environments(ctx)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, "prod", deployments[0].Environment)
	assert.Equal(t, StatusCompleted, deployments[0].Status)

	require.NoError(t, store.RemoveDeployment(ctx, "prod"))
	deployments, err = store.Environments(ctx)
	require.NoError(t, err)
	assert.Empty(t, deployments)
}

func TestStore_Lock(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Lock())

	// A second lock attempt fails while the first is held.
	err := store.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")

	require.NoError(t, store.Unlock())
	require.NoError(t, store.Lock())
	require.NoError(t, store.Unlock())
}
