package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketHosts           = []byte("hosts")
	bucketHostStorages    = []byte("host_storages")
	bucketResourceGroups  = []byte("resource_groups")
	bucketResources       = []byte("resources")
	bucketHealthRecords   = []byte("health_records")
	bucketRoles           = []byte("roles")
	bucketRoleAssignments = []byte("role_assignments")
	bucketUserGroups      = []byte("user_groups")
	bucketInstanceConfigs = []byte("instance_configs")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) burrow.db inside dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Another process holding the file lock makes Open fail after the timeout
	db, err := bolt.Open(filepath.Join(dataDir, "burrow.db"), 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketHosts,
			bucketHostStorages,
			bucketResourceGroups,
			bucketResources,
			bucketHealthRecords,
			bucketRoles,
			bucketRoleAssignments,
			bucketUserGroups,
			bucketInstanceConfigs,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// itob encodes an id as a big-endian key so cursor order equals id order
func itob(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// create assigns the next sequence to *id when it is zero and stores v under it
func create(tx *bolt.Tx, bucket []byte, id *uint64, v any) error {
	b := tx.Bucket(bucket)
	if *id == 0 {
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		*id = seq
	} else if *id > b.Sequence() {
		if err := b.SetSequence(*id); err != nil {
			return err
		}
	}
	return put(b, itob(*id), v)
}

func put(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func get[T any](db *bolt.DB, bucket []byte, key []byte, kind string, id any) (*T, error) {
	var v T
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return apperrors.NotFound("%s not found: %v", kind, id)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// list returns every value of bucket in key order that passes keep
func list[T any](db *bolt.DB, bucket []byte, keep func(*T) bool) ([]*T, error) {
	var items []*T
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			if keep == nil || keep(&item) {
				items = append(items, &item)
			}
			return nil
		})
	})
	return items, err
}

func first[T any](db *bolt.DB, bucket []byte, kind string, name string, match func(*T) bool) (*T, error) {
	items, err := list(db, bucket, match)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperrors.NotFound("%s not found: %s", kind, name)
	}
	return items[0], nil
}

// Host operations
func (s *BoltStore) CreateHost(host *types.Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return create(tx, bucketHosts, &host.ID, host)
	})
}

func (s *BoltStore) GetHost(id uint64) (*types.Host, error) {
	return get[types.Host](s.db, bucketHosts, itob(id), "host", id)
}

func (s *BoltStore) GetHostByName(hostname string) (*types.Host, error) {
	return first(s.db, bucketHosts, "host", hostname, func(h *types.Host) bool {
		return h.Hostname == hostname
	})
}

func (s *BoltStore) ListHosts() ([]*types.Host, error) {
	return list[types.Host](s.db, bucketHosts, nil)
}

// Host storage operations
func (s *BoltStore) CreateHostStorage(storage *types.HostStorage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketHosts).Get(itob(storage.HostID)) == nil {
			return apperrors.NotFound("host not found: %d", storage.HostID)
		}
		return create(tx, bucketHostStorages, &storage.ID, storage)
	})
}

func (s *BoltStore) GetHostStorage(id uint64) (*types.HostStorage, error) {
	return get[types.HostStorage](s.db, bucketHostStorages, itob(id), "host storage", id)
}

func (s *BoltStore) ListHostStorages(hostID uint64) ([]*types.HostStorage, error) {
	return list(s.db, bucketHostStorages, func(hs *types.HostStorage) bool {
		return hs.HostID == hostID
	})
}

// Resource group operations
func (s *BoltStore) CreateResourceGroup(group *types.ResourceGroup) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return create(tx, bucketResourceGroups, &group.ID, group)
	})
}

func (s *BoltStore) GetResourceGroup(id uint64) (*types.ResourceGroup, error) {
	return get[types.ResourceGroup](s.db, bucketResourceGroups, itob(id), "resource group", id)
}

func (s *BoltStore) GetResourceGroupByName(name string) (*types.ResourceGroup, error) {
	return first(s.db, bucketResourceGroups, "resource group", name, func(g *types.ResourceGroup) bool {
		return g.Name == name
	})
}

func (s *BoltStore) ListResourceGroups() ([]*types.ResourceGroup, error) {
	return list[types.ResourceGroup](s.db, bucketResourceGroups, nil)
}

// Resource operations
func (s *BoltStore) CreateResource(resource *types.Resource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResources)
		if err := checkResourceUnique(b, resource); err != nil {
			return err
		}
		return create(tx, bucketResources, &resource.ID, resource)
	})
}

// checkResourceUnique fails with CodeConflict when another resource in the
// same group has the same provider, type and name. It runs inside the write
// transaction so concurrent writers cannot both pass it.
func checkResourceUnique(b *bolt.Bucket, resource *types.Resource) error {
	return b.ForEach(func(k, v []byte) error {
		var other types.Resource
		if err := json.Unmarshal(v, &other); err != nil {
			return err
		}
		if other.ID != resource.ID &&
			other.ResourceGroupID == resource.ResourceGroupID &&
			other.ResourceProviderName == resource.ResourceProviderName &&
			other.ResourceTypeName == resource.ResourceTypeName &&
			other.Name == resource.Name {
			return apperrors.Newf(apperrors.CodeConflict, "resource %s already exists in group %d", resource.Name, resource.ResourceGroupID)
		}
		return nil
	})
}

func (s *BoltStore) GetResource(id uint64) (*types.Resource, error) {
	return get[types.Resource](s.db, bucketResources, itob(id), "resource", id)
}

func (s *BoltStore) FindResource(groupID uint64, providerName, typeName, name string) (*types.Resource, error) {
	return first(s.db, bucketResources, "resource", name, func(r *types.Resource) bool {
		return r.ResourceGroupID == groupID &&
			r.ResourceProviderName == providerName &&
			r.ResourceTypeName == typeName &&
			r.Name == name
	})
}

func (s *BoltStore) ListResources() ([]*types.Resource, error) {
	return list[types.Resource](s.db, bucketResources, nil)
}

func (s *BoltStore) ListResourcesByGroup(groupID uint64) ([]*types.Resource, error) {
	return list(s.db, bucketResources, func(r *types.Resource) bool {
		return r.ResourceGroupID == groupID
	})
}

func (s *BoltStore) UpdateResource(resource *types.Resource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResources)
		if b.Get(itob(resource.ID)) == nil {
			return apperrors.NotFound("resource not found: %d", resource.ID)
		}
		if err := checkResourceUnique(b, resource); err != nil {
			return err
		}
		return put(b, itob(resource.ID), resource)
	})
}

func (s *BoltStore) DeleteResource(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		resources := tx.Bucket(bucketResources)
		key := itob(id)
		if resources.Get(key) == nil {
			return apperrors.NotFound("resource not found: %d", id)
		}
		if err := resources.Delete(key); err != nil {
			return err
		}

		if err := deletePrefix(tx.Bucket(bucketHealthRecords), key); err != nil {
			return fmt.Errorf("failed to delete health records: %w", err)
		}

		assignments := tx.Bucket(bucketRoleAssignments)
		var stale [][]byte
		err := assignments.ForEach(func(k, v []byte) error {
			var ra types.RoleAssignment
			if err := json.Unmarshal(v, &ra); err != nil {
				return err
			}
			if ra.Scope == types.ScopeResource && ra.ResourceID == id {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := assignments.Delete(k); err != nil {
				return fmt.Errorf("failed to delete role assignment: %w", err)
			}
		}

		return tx.Bucket(bucketInstanceConfigs).Delete(key)
	})
}

func deletePrefix(b *bolt.Bucket, prefix []byte) error {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Health record operations
func healthKey(resourceID uint64, checkType types.CheckType) []byte {
	return append(itob(resourceID), []byte(checkType)...)
}

func (s *BoltStore) PutHealthRecord(record *types.HealthRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketHealthRecords), healthKey(record.ResourceID, record.CheckType), record)
	})
}

func (s *BoltStore) GetHealthRecord(resourceID uint64, checkType types.CheckType) (*types.HealthRecord, error) {
	return get[types.HealthRecord](s.db, bucketHealthRecords, healthKey(resourceID, checkType),
		"health record", fmt.Sprintf("%d/%s", resourceID, checkType))
}

func (s *BoltStore) ListHealthRecords(resourceID uint64) ([]*types.HealthRecord, error) {
	var records []*types.HealthRecord
	prefix := itob(resourceID)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHealthRecords).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record types.HealthRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	return records, err
}

// Role operations
func (s *BoltStore) CreateRole(role *types.Role) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return create(tx, bucketRoles, &role.ID, role)
	})
}

func (s *BoltStore) GetRole(id uint64) (*types.Role, error) {
	return get[types.Role](s.db, bucketRoles, itob(id), "role", id)
}

func (s *BoltStore) GetRoleByName(name string) (*types.Role, error) {
	return first(s.db, bucketRoles, "role", name, func(r *types.Role) bool {
		return r.Name == name
	})
}

func (s *BoltStore) ListRoles() ([]*types.Role, error) {
	return list[types.Role](s.db, bucketRoles, nil)
}

func (s *BoltStore) CreateRoleAssignment(assignment *types.RoleAssignment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketRoles).Get(itob(assignment.RoleID)) == nil {
			return apperrors.NotFound("role not found: %d", assignment.RoleID)
		}
		return create(tx, bucketRoleAssignments, &assignment.ID, assignment)
	})
}

func (s *BoltStore) ListRoleAssignments() ([]*types.RoleAssignment, error) {
	return list[types.RoleAssignment](s.db, bucketRoleAssignments, nil)
}

func (s *BoltStore) DeleteRoleAssignment(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoleAssignments).Delete(itob(id))
	})
}

// User group operations
func (s *BoltStore) CreateUserGroup(group *types.UserGroup) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return create(tx, bucketUserGroups, &group.ID, group)
	})
}

func (s *BoltStore) GetUserGroup(id uint64) (*types.UserGroup, error) {
	return get[types.UserGroup](s.db, bucketUserGroups, itob(id), "user group", id)
}

func (s *BoltStore) GetUserGroupByName(name string) (*types.UserGroup, error) {
	return first(s.db, bucketUserGroups, "user group", name, func(g *types.UserGroup) bool {
		return g.Name == name
	})
}

func (s *BoltStore) ListUserGroups() ([]*types.UserGroup, error) {
	return list[types.UserGroup](s.db, bucketUserGroups, nil)
}

func (s *BoltStore) UpdateUserGroup(group *types.UserGroup) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUserGroups)
		if b.Get(itob(group.ID)) == nil {
			return apperrors.NotFound("user group not found: %d", group.ID)
		}
		return put(b, itob(group.ID), group)
	})
}

// Instance config operations
func (s *BoltStore) PutInstanceConfig(resourceID uint64, sealed []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstanceConfigs).Put(itob(resourceID), sealed)
	})
}

func (s *BoltStore) GetInstanceConfig(resourceID uint64) ([]byte, error) {
	var sealed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketInstanceConfigs).Get(itob(resourceID))
		if data == nil {
			return apperrors.NotFound("instance config not found: %d", resourceID)
		}
		sealed = append([]byte(nil), data...)
		return nil
	})
	return sealed, err
}
