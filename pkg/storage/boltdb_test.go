package storage

import (
	"testing"
	"time"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAllocatesIncreasingIDs(t *testing.T) {
	store := newTestStore(t)

	var ids []uint64
	for _, name := range []string{"node-a", "node-b", "node-c"} {
		host := &types.Host{Hostname: name}
		require.NoError(t, store.CreateHost(host))
		ids = append(ids, host.ID)
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	hosts, err := store.ListHosts()
	require.NoError(t, err)
	require.Len(t, hosts, 3)
	assert.Equal(t, "node-a", hosts[0].Hostname)
	assert.Equal(t, "node-c", hosts[2].Hostname)
}

func TestExplicitIDAdvancesSequence(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateResourceGroup(&types.ResourceGroup{ID: 10, Name: "explicit"}))
	next := &types.ResourceGroup{Name: "allocated"}
	require.NoError(t, store.CreateResourceGroup(next))
	assert.Equal(t, uint64(11), next.ID)
}

func TestGetMissingIsNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetHost(42)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = store.GetResourceGroupByName("nope")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = store.GetHealthRecord(1, types.CheckAvailability)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = store.GetInstanceConfig(1)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	err = store.UpdateResource(&types.Resource{ID: 9})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestHostStoragesRequireHost(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateHostStorage(&types.HostStorage{HostID: 7, Path: "/srv"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	host := &types.Host{Hostname: "node-a"}
	require.NoError(t, store.CreateHost(host))
	other := &types.Host{Hostname: "node-b"}
	require.NoError(t, store.CreateHost(other))

	for _, hs := range []*types.HostStorage{
		{HostID: host.ID, Path: "/srv/a", FileSystemType: "ext4"},
		{HostID: other.ID, Path: "/srv/x", FileSystemType: "ext4"},
		{HostID: host.ID, Path: "/srv/b", FileSystemType: "btrfs"},
	} {
		require.NoError(t, store.CreateHostStorage(hs))
	}

	storages, err := store.ListHostStorages(host.ID)
	require.NoError(t, err)
	require.Len(t, storages, 2)
	assert.Equal(t, "/srv/a", storages[0].Path)
	assert.Equal(t, "/srv/b", storages[1].Path)
}

func TestFindResource(t *testing.T) {
	store := newTestStore(t)

	r := &types.Resource{
		Name:                 "web",
		ResourceGroupID:      1,
		ResourceProviderName: "endpoint",
		ResourceTypeName:     "http-endpoint",
	}
	require.NoError(t, store.CreateResource(r))

	found, err := store.FindResource(1, "endpoint", "http-endpoint", "web")
	require.NoError(t, err)
	assert.Equal(t, r.ID, found.ID)

	_, err = store.FindResource(2, "endpoint", "http-endpoint", "web")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestResourceNamesUniquePerGroupAndType(t *testing.T) {
	store := newTestStore(t)

	web := &types.Resource{Name: "web", ResourceGroupID: 1, ResourceProviderName: "vm", ResourceTypeName: "qemu"}
	require.NoError(t, store.CreateResource(web))

	err := store.CreateResource(&types.Resource{Name: "web", ResourceGroupID: 1, ResourceProviderName: "vm", ResourceTypeName: "qemu"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	require.NoError(t, store.CreateResource(&types.Resource{Name: "web", ResourceGroupID: 2, ResourceProviderName: "vm", ResourceTypeName: "qemu"}))
	require.NoError(t, store.CreateResource(&types.Resource{Name: "web", ResourceGroupID: 1, ResourceProviderName: "vm", ResourceTypeName: "lxc"}))

	db := &types.Resource{Name: "db", ResourceGroupID: 1, ResourceProviderName: "vm", ResourceTypeName: "qemu"}
	require.NoError(t, store.CreateResource(db))

	db.Name = "web"
	err = store.UpdateResource(db)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	// Rewriting a resource under its own name is not a conflict.
	web.StorageID = 9
	require.NoError(t, store.UpdateResource(web))

	all, err := store.ListResources()
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestHealthRecordsReplacedInPlace(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.PutHealthRecord(&types.HealthRecord{
		ResourceID: 1, CheckType: types.CheckAvailability, Status: types.HealthInDeployment,
	}))
	require.NoError(t, store.PutHealthRecord(&types.HealthRecord{
		ResourceID: 1, CheckType: types.CheckAvailability, Status: types.HealthUp, LastSuccessfulCheck: now,
	}))
	require.NoError(t, store.PutHealthRecord(&types.HealthRecord{
		ResourceID: 1, CheckType: types.CheckServiceHealth, Status: types.HealthCorrupt, Log: "daemon missing",
	}))
	require.NoError(t, store.PutHealthRecord(&types.HealthRecord{
		ResourceID: 2, CheckType: types.CheckAvailability, Status: types.HealthDown,
	}))

	records, err := store.ListHealthRecords(1)
	require.NoError(t, err)
	require.Len(t, records, 2)

	rec, err := store.GetHealthRecord(1, types.CheckAvailability)
	require.NoError(t, err)
	assert.Equal(t, types.HealthUp, rec.Status)
	assert.True(t, now.Equal(rec.LastSuccessfulCheck))
}

func TestDeleteResourceCascades(t *testing.T) {
	store := newTestStore(t)

	keep := &types.Resource{Name: "keep", ResourceGroupID: 1}
	drop := &types.Resource{Name: "drop", ResourceGroupID: 1}
	require.NoError(t, store.CreateResource(keep))
	require.NoError(t, store.CreateResource(drop))

	role := &types.Role{Name: "reader", Permissions: []string{types.PermissionReadResources}}
	require.NoError(t, store.CreateRole(role))

	for _, id := range []uint64{keep.ID, drop.ID} {
		require.NoError(t, store.PutHealthRecord(&types.HealthRecord{ResourceID: id, CheckType: types.CheckAvailability}))
		require.NoError(t, store.PutHealthRecord(&types.HealthRecord{ResourceID: id, CheckType: types.CheckServiceHealth}))
		require.NoError(t, store.PutInstanceConfig(id, []byte("sealed")))
		require.NoError(t, store.CreateRoleAssignment(&types.RoleAssignment{
			PrincipalID: "g1", RoleID: role.ID, Scope: types.ScopeResource, ResourceID: id,
		}))
	}
	require.NoError(t, store.CreateRoleAssignment(&types.RoleAssignment{
		PrincipalID: "g1", RoleID: role.ID, Scope: types.ScopeResourceGroup, ResourceGroupID: 1,
	}))

	require.NoError(t, store.DeleteResource(drop.ID))

	_, err := store.GetResource(drop.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	records, err := store.ListHealthRecords(drop.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = store.GetInstanceConfig(drop.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	assignments, err := store.ListRoleAssignments()
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	for _, ra := range assignments {
		assert.NotEqual(t, drop.ID, ra.ResourceID)
	}

	records, err = store.ListHealthRecords(keep.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	_, err = store.GetInstanceConfig(keep.ID)
	assert.NoError(t, err)

	err = store.DeleteResource(drop.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestRoleAssignmentRequiresRole(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateRoleAssignment(&types.RoleAssignment{PrincipalID: "g1", RoleID: 3, Scope: types.ScopeCluster})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestUserGroups(t *testing.T) {
	store := newTestStore(t)

	group := &types.UserGroup{Name: "ops", Members: []uint64{1, 2}}
	require.NoError(t, store.CreateUserGroup(group))

	group.Members = append(group.Members, 3)
	require.NoError(t, store.UpdateUserGroup(group))

	loaded, err := store.GetUserGroupByName("ops")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, loaded.Members)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.CreateHost(&types.Host{Hostname: "node-a"}))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	host, err := store.GetHostByName("node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), host.ID)
}
