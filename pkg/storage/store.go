package storage

import (
	"github.com/cuemby/burrow/pkg/types"
)

// Store is the datastore of record for the control plane.
//
// Create methods allocate a numeric id when the given id is zero; ids grow
// monotonically so id order equals registration order. Lookups of missing
// rows return an error classified as errors.CodeNotFound.
type Store interface {
	// Hosts
	CreateHost(host *types.Host) error
	GetHost(id uint64) (*types.Host, error)
	GetHostByName(hostname string) (*types.Host, error)
	ListHosts() ([]*types.Host, error)

	// Host storages
	CreateHostStorage(storage *types.HostStorage) error
	GetHostStorage(id uint64) (*types.HostStorage, error)
	ListHostStorages(hostID uint64) ([]*types.HostStorage, error)

	// Resource groups
	CreateResourceGroup(group *types.ResourceGroup) error
	GetResourceGroup(id uint64) (*types.ResourceGroup, error)
	GetResourceGroupByName(name string) (*types.ResourceGroup, error)
	ListResourceGroups() ([]*types.ResourceGroup, error)

	// Resources. CreateResource and UpdateResource fail with
	// errors.CodeConflict when the group already holds a resource with the
	// same provider, type and name.
	CreateResource(resource *types.Resource) error
	GetResource(id uint64) (*types.Resource, error)
	FindResource(groupID uint64, providerName, typeName, name string) (*types.Resource, error)
	ListResources() ([]*types.Resource, error)
	ListResourcesByGroup(groupID uint64) ([]*types.Resource, error)
	UpdateResource(resource *types.Resource) error
	// DeleteResource removes the resource together with its health records,
	// resource-scoped role assignments and instance config in one transaction.
	DeleteResource(id uint64) error

	// Health records
	PutHealthRecord(record *types.HealthRecord) error
	GetHealthRecord(resourceID uint64, checkType types.CheckType) (*types.HealthRecord, error)
	ListHealthRecords(resourceID uint64) ([]*types.HealthRecord, error)

	// Roles and assignments
	CreateRole(role *types.Role) error
	GetRole(id uint64) (*types.Role, error)
	GetRoleByName(name string) (*types.Role, error)
	ListRoles() ([]*types.Role, error)
	CreateRoleAssignment(assignment *types.RoleAssignment) error
	ListRoleAssignments() ([]*types.RoleAssignment, error)
	DeleteRoleAssignment(id uint64) error

	// User groups
	CreateUserGroup(group *types.UserGroup) error
	GetUserGroup(id uint64) (*types.UserGroup, error)
	GetUserGroupByName(name string) (*types.UserGroup, error)
	ListUserGroups() ([]*types.UserGroup, error)
	UpdateUserGroup(group *types.UserGroup) error

	// Instance configs (sealed bytes)
	PutInstanceConfig(resourceID uint64, sealed []byte) error
	GetInstanceConfig(resourceID uint64) ([]byte, error)

	// Utility
	Close() error
}
