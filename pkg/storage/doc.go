/*
Package storage is the datastore of record for Burrow, implemented on BoltDB.

Every entity lives in its own bucket as JSON, keyed by its numeric id encoded
big-endian so cursor order equals registration order:

	hosts             itob(id)                 -> types.Host
	host_storages     itob(id)                 -> types.HostStorage
	resource_groups   itob(id)                 -> types.ResourceGroup
	resources         itob(id)                 -> types.Resource
	health_records    itob(resourceID)+check   -> types.HealthRecord
	roles             itob(id)                 -> types.Role
	role_assignments  itob(id)                 -> types.RoleAssignment
	user_groups       itob(id)                 -> types.UserGroup
	instance_configs  itob(resourceID)         -> sealed bytes

Ids come from the bucket sequence. Health records for one resource share a key
prefix, which makes listing and cascading deletes a single cursor seek.

Missing rows are reported with errors.CodeNotFound so callers can tell them
apart from I/O failures:

	res, err := store.GetResource(id)
	if apperrors.IsCode(err, apperrors.CodeNotFound) {
		...
	}

BoltDB serializes writers; the store is safe for concurrent use.
*/
package storage
