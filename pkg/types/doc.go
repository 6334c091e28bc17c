/*
Package types defines the domain model shared by every Burrow package.

# Inventory

Hosts carry HostStorages (mount point plus filesystem type). Resources are
grouped into ResourceGroups and live on one HostStorage. A resource keeps
its numeric ID for life; its name, group and host may change.

A ResourceReference is a denormalized view of a resource that providers
receive. Its external id has four segments:

	/<resource group>/<provider>/<type>/<name>

Names are validated with ValidateName before a resource is created or
renamed.

# Health

Each resource has one HealthRecord per CheckType (availability, service
health, data integrity). HealthStatus values are ordered by severity:

	Up < InDeployment < Down < Corrupt

so the overall status of a resource is the Worse of its records.

# Access control

Roles bundle permission strings. RoleAssignments attach a role to a
principal at cluster, resource group or resource scope. The well-known
permissions are the Permission* constants.
*/
package types
