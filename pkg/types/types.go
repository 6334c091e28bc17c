package types

import (
	"time"
)

// Host represents a managed machine that resources live on
type Host struct {
	ID        uint64
	Hostname  string
	CreatedAt time.Time
}

// HostStorage is a storage volume mounted on a host
type HostStorage struct {
	ID             uint64
	HostID         uint64
	Path           string // Mount point on the host (e.g. "/srv/pool1")
	FileSystemType string // "ext4", "btrfs", "zfs", ...
}

// ResourceGroup scopes resources and role assignments
type ResourceGroup struct {
	ID        uint64
	Name      string
	CreatedAt time.Time
}

// Resource is a managed infrastructure unit (VM, share, DNS server, ...).
// The ID never changes, not even when the resource is renamed or rehosted.
type Resource struct {
	ID                   uint64
	Name                 string
	ResourceGroupID      uint64
	ResourceProviderName string
	ResourceTypeName     string
	StorageID            uint64 // HostStorage the resource's data lives on
	CreatedAt            time.Time
}

// CheckType is an independent axis of a resource's health
type CheckType string

const (
	CheckAvailability  CheckType = "availability"
	CheckServiceHealth CheckType = "service_health"
	CheckDataIntegrity CheckType = "data_integrity"
)

// CheckTypes lists all check types in evaluation order
var CheckTypes = []CheckType{CheckAvailability, CheckServiceHealth, CheckDataIntegrity}

// HealthRecord is the latest result of one check type for one resource.
// It is replaced on every check.
type HealthRecord struct {
	ResourceID          uint64
	CheckType           CheckType
	Status              HealthStatus
	LastSuccessfulCheck time.Time
	Log                 string
}

// UserGroup is a named set of users that role assignments can target
type UserGroup struct {
	ID      uint64
	Name    string
	Members []uint64
}

// Role is a named set of permissions
type Role struct {
	ID          uint64
	Name        string
	Permissions []string
}

// Well-known permissions checked by the control plane
const (
	PermissionReadResources   = "resources:read"
	PermissionDeployResources = "resources:deploy"
	PermissionManageResources = "resources:manage"
	PermissionManageRBAC      = "rbac:manage"
)

// RoleScope is the level a role assignment is attached to
type RoleScope string

const (
	ScopeCluster       RoleScope = "cluster"
	ScopeResourceGroup RoleScope = "resource_group"
	ScopeResource      RoleScope = "resource"
)

// RoleAssignment grants a role to a principal at exactly one scope.
// ResourceGroupID is set for ScopeResourceGroup, ResourceID for ScopeResource.
type RoleAssignment struct {
	ID              uint64
	PrincipalID     string // Tagged principal, e.g. "g42" for user group 42
	RoleID          uint64
	Scope           RoleScope
	ResourceGroupID uint64
	ResourceID      uint64
}

// ScheduleType selects how a periodic check recurs
type ScheduleType string

const (
	ScheduleDaily  ScheduleType = "daily"
	ScheduleWeekly ScheduleType = "weekly"
)

// Schedule describes when a periodic task is due.
// Daily schedules fire once a day at AtHour; weekly schedules fire every Counter weeks.
type Schedule struct {
	Type    ScheduleType
	AtHour  int
	Counter int
}

// Daily returns a daily schedule at the given hour
func Daily(atHour int) Schedule {
	return Schedule{Type: ScheduleDaily, AtHour: atHour}
}

// Weekly returns a schedule that recurs every counter weeks
func Weekly(counter int) Schedule {
	return Schedule{Type: ScheduleWeekly, Counter: counter}
}

// OperationalState is the live state a provider reports for a resource
type OperationalState string

const (
	StateRunning  OperationalState = "running"
	StateStopped  OperationalState = "stopped"
	StateStarting OperationalState = "starting"
	StateDown     OperationalState = "down"
)

// Valid reports whether s is one of the known operational states
func (s OperationalState) Valid() bool {
	switch s {
	case StateRunning, StateStopped, StateStarting, StateDown:
		return true
	}
	return false
}
