package manager

import (
	"context"
	"fmt"
	"io"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/rbac"
	"github.com/cuemby/burrow/pkg/types"
	"gopkg.in/yaml.v3"
)

// Manifest declares the inventory a fresh installation starts from.
// Seeding is idempotent: entries that already exist by name are kept.
type Manifest struct {
	Hosts          []HostManifest       `yaml:"hosts"`
	ResourceGroups []string             `yaml:"resource_groups"`
	Roles          []RoleManifest       `yaml:"roles"`
	UserGroups     []UserGroupManifest  `yaml:"user_groups"`
	Assignments    []AssignmentManifest `yaml:"assignments"`
}

type HostManifest struct {
	Hostname string            `yaml:"hostname"`
	Storages []StorageManifest `yaml:"storages"`
}

type StorageManifest struct {
	Path       string `yaml:"path"`
	FileSystem string `yaml:"filesystem"`
}

type RoleManifest struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type UserGroupManifest struct {
	Name    string   `yaml:"name"`
	Members []uint64 `yaml:"members"`
}

// AssignmentManifest grants Role to UserGroup. ResourceGroup names the
// group for resource_group scope; Resource is an external id for
// resource scope.
type AssignmentManifest struct {
	UserGroup     string          `yaml:"user_group"`
	Role          string          `yaml:"role"`
	Scope         types.RoleScope `yaml:"scope"`
	ResourceGroup string          `yaml:"resource_group,omitempty"`
	Resource      string          `yaml:"resource,omitempty"`
}

// LoadManifest decodes a YAML manifest
func LoadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if err == io.EOF {
			return &m, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInvalid, "failed to parse manifest")
	}
	return &m, nil
}

// SeedReport counts the rows a seed run created
type SeedReport struct {
	Hosts          int
	Storages       int
	ResourceGroups int
	Roles          int
	UserGroups     int
	Assignments    int
}

// Seed creates whatever the manifest declares and the store lacks.
// It bypasses permission checks and is meant for bootstrap only.
func (m *Manager) Seed(ctx context.Context, manifest *Manifest) (*SeedReport, error) {
	report := &SeedReport{}

	for _, hm := range manifest.Hosts {
		host, created, err := m.ensureHost(hm.Hostname)
		if err != nil {
			return report, err
		}
		if created {
			report.Hosts++
		}
		for _, sm := range hm.Storages {
			created, err := m.ensureStorage(host.ID, sm)
			if err != nil {
				return report, err
			}
			if created {
				report.Storages++
			}
		}
	}

	for _, name := range manifest.ResourceGroups {
		_, created, err := m.ensureResourceGroup(name)
		if err != nil {
			return report, err
		}
		if created {
			report.ResourceGroups++
		}
	}

	for _, rm := range manifest.Roles {
		_, created, err := m.ensureRole(rm)
		if err != nil {
			return report, err
		}
		if created {
			report.Roles++
		}
	}

	for _, gm := range manifest.UserGroups {
		_, created, err := m.ensureUserGroup(gm)
		if err != nil {
			return report, err
		}
		if created {
			report.UserGroups++
		}
	}

	for _, am := range manifest.Assignments {
		created, err := m.ensureAssignment(ctx, am)
		if err != nil {
			return report, err
		}
		if created {
			report.Assignments++
		}
	}

	m.logger.Info().
		Int("hosts", report.Hosts).
		Int("storages", report.Storages).
		Int("resource_groups", report.ResourceGroups).
		Int("roles", report.Roles).
		Int("user_groups", report.UserGroups).
		Int("assignments", report.Assignments).
		Msg("Seed applied")
	return report, nil
}

func (m *Manager) ensureHost(hostname string) (*types.Host, bool, error) {
	if hostname == "" {
		return nil, false, apperrors.Invalid("host without hostname")
	}
	host, err := m.store.GetHostByName(hostname)
	if err == nil {
		return host, false, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return nil, false, err
	}
	host = &types.Host{Hostname: hostname}
	if err := m.store.CreateHost(host); err != nil {
		return nil, false, err
	}
	return host, true, nil
}

func (m *Manager) ensureStorage(hostID uint64, sm StorageManifest) (bool, error) {
	if sm.Path == "" {
		return false, apperrors.Invalid("storage without path on host %d", hostID)
	}
	existing, err := m.store.ListHostStorages(hostID)
	if err != nil {
		return false, err
	}
	for _, s := range existing {
		if s.Path == sm.Path {
			return false, nil
		}
	}
	return true, m.store.CreateHostStorage(&types.HostStorage{
		HostID:         hostID,
		Path:           sm.Path,
		FileSystemType: sm.FileSystem,
	})
}

func (m *Manager) ensureResourceGroup(name string) (*types.ResourceGroup, bool, error) {
	if err := types.ValidateName(name); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.CodeInvalid, "invalid resource group name")
	}
	group, err := m.store.GetResourceGroupByName(name)
	if err == nil {
		return group, false, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return nil, false, err
	}
	group = &types.ResourceGroup{Name: name}
	if err := m.store.CreateResourceGroup(group); err != nil {
		return nil, false, err
	}
	return group, true, nil
}

func (m *Manager) ensureRole(rm RoleManifest) (*types.Role, bool, error) {
	role, err := m.store.GetRoleByName(rm.Name)
	if err == nil {
		return role, false, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return nil, false, err
	}
	role = &types.Role{Name: rm.Name, Permissions: rm.Permissions}
	if err := m.store.CreateRole(role); err != nil {
		return nil, false, err
	}
	return role, true, nil
}

// ensureUserGroup creates the group or adds members missing from it
func (m *Manager) ensureUserGroup(gm UserGroupManifest) (*types.UserGroup, bool, error) {
	group, err := m.store.GetUserGroupByName(gm.Name)
	switch {
	case err == nil:
		known := make(map[uint64]bool, len(group.Members))
		for _, id := range group.Members {
			known[id] = true
		}
		changed := false
		for _, id := range gm.Members {
			if !known[id] {
				group.Members = append(group.Members, id)
				known[id] = true
				changed = true
			}
		}
		if changed {
			if err := m.store.UpdateUserGroup(group); err != nil {
				return nil, false, err
			}
		}
		return group, false, nil
	case !apperrors.IsCode(err, apperrors.CodeNotFound):
		return nil, false, err
	}

	group = &types.UserGroup{Name: gm.Name, Members: gm.Members}
	if err := m.store.CreateUserGroup(group); err != nil {
		return nil, false, err
	}
	return group, true, nil
}

func (m *Manager) ensureAssignment(ctx context.Context, am AssignmentManifest) (bool, error) {
	group, err := m.store.GetUserGroupByName(am.UserGroup)
	if err != nil {
		return false, fmt.Errorf("assignment user group %q: %w", am.UserGroup, err)
	}
	role, err := m.store.GetRoleByName(am.Role)
	if err != nil {
		return false, fmt.Errorf("assignment role %q: %w", am.Role, err)
	}

	want := &types.RoleAssignment{
		PrincipalID: rbac.GroupPrincipal(group.ID),
		RoleID:      role.ID,
		Scope:       am.Scope,
	}
	var ref *types.ResourceReference
	switch am.Scope {
	case types.ScopeCluster:
	case types.ScopeResourceGroup:
		rg, err := m.store.GetResourceGroupByName(am.ResourceGroup)
		if err != nil {
			return false, fmt.Errorf("assignment resource group %q: %w", am.ResourceGroup, err)
		}
		want.ResourceGroupID = rg.ID
	case types.ScopeResource:
		ref, err = m.resolver.ByExternalID(am.Resource)
		if err != nil {
			return false, fmt.Errorf("assignment resource %q: %w", am.Resource, err)
		}
		want.ResourceID = ref.ID
	default:
		return false, apperrors.Invalid("unknown role scope %q", am.Scope)
	}

	existing, err := m.store.ListRoleAssignments()
	if err != nil {
		return false, err
	}
	for _, a := range existing {
		if a.PrincipalID == want.PrincipalID && a.RoleID == want.RoleID && a.Scope == want.Scope &&
			a.ResourceGroupID == want.ResourceGroupID && a.ResourceID == want.ResourceID {
			return false, nil
		}
	}

	if err := m.store.CreateRoleAssignment(want); err != nil {
		return false, err
	}
	if ref != nil {
		if err := m.providers.ResourcePermissionsChanged(ctx, ref); err != nil {
			m.logger.Error().Err(err).Uint64("resource_id", ref.ID).Msg("Provider failed to apply permission change")
		}
	}
	return true, nil
}
