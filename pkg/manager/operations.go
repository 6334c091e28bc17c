package manager

import (
	"context"
	"fmt"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/rbac"
	"github.com/cuemby/burrow/pkg/types"
)

func forbidden(userID uint64, permission string) error {
	return apperrors.Newf(apperrors.CodeForbidden, "user %d lacks %s", userID, permission).
		WithMeta("permission", permission)
}

func (m *Manager) requireOnResource(ctx context.Context, ref *types.ResourceReference, userID uint64, permission string) error {
	ok, err := m.permissions.HasUserPermissionOnResourceScope(ctx, ref, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden(userID, permission)
	}
	return nil
}

func (m *Manager) requireOnGroup(ctx context.Context, groupID, userID uint64, permission string) error {
	ok, err := m.permissions.HasUserPermissionOnResourceGroupScope(ctx, groupID, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden(userID, permission)
	}
	return nil
}

func (m *Manager) requireClusterWide(ctx context.Context, userID uint64, permission string) error {
	ok, err := m.permissions.HasUserClusterWidePermission(ctx, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden(userID, permission)
	}
	return nil
}

// DeployResource starts deploying a resource into a group on a host.
// The user needs resources:deploy on the group.
func (m *Manager) DeployResource(ctx context.Context, userID, groupID, hostID uint64, properties map[string]any) (*types.ResourceReference, error) {
	if _, err := m.store.GetResourceGroup(groupID); err != nil {
		return nil, err
	}
	if err := m.requireOnGroup(ctx, groupID, userID, types.PermissionDeployResources); err != nil {
		return nil, err
	}
	return m.deployer.StartInstanceDeployment(ctx, properties, groupID, hostID, userID)
}

// RehostResource moves a resource to another host. The user needs
// resources:manage on the resource.
func (m *Manager) RehostResource(ctx context.Context, userID, resourceID, targetHostID uint64, properties map[string]any) (*types.ResourceReference, error) {
	ref, err := m.resolver.ByID(resourceID)
	if err != nil {
		return nil, err
	}
	if err := m.requireOnResource(ctx, ref, userID, types.PermissionManageResources); err != nil {
		return nil, err
	}
	return m.deployer.RehostResource(ctx, ref, properties, targetHostID, userID)
}

// GetResource returns the overview of a resource readable by the user
func (m *Manager) GetResource(ctx context.Context, userID, resourceID uint64) (*query.ResourceOverview, error) {
	ref, err := m.resolver.ByID(resourceID)
	if err != nil {
		return nil, err
	}
	if err := m.requireOnResource(ctx, ref, userID, types.PermissionReadResources); err != nil {
		return nil, err
	}
	return m.queries.Overview(ctx, resourceID)
}

// GetResourceByExternalID is GetResource addressed by /group/provider/type/name
func (m *Manager) GetResourceByExternalID(ctx context.Context, userID uint64, externalID string) (*query.ResourceOverview, error) {
	ref, err := m.resolver.ByExternalID(externalID)
	if err != nil {
		return nil, err
	}
	return m.GetResource(ctx, userID, ref.ID)
}

// ListResources returns every resource the user can read
func (m *Manager) ListResources(ctx context.Context, userID uint64) ([]*query.ResourceOverview, error) {
	return m.queries.ListResources(ctx, userID)
}

// ListGroupResources returns the resources of a group the user can read
func (m *Manager) ListGroupResources(ctx context.Context, userID, groupID uint64) ([]*query.ResourceOverview, error) {
	if _, err := m.store.GetResourceGroup(groupID); err != nil {
		return nil, err
	}
	return m.queries.ListGroupResources(ctx, userID, groupID)
}

// AssignRole grants a role to a user group. The user needs rbac:manage
// cluster-wide. Providers are told when a resource's grants change.
func (m *Manager) AssignRole(ctx context.Context, userID uint64, assignment *types.RoleAssignment) error {
	if err := m.requireClusterWide(ctx, userID, types.PermissionManageRBAC); err != nil {
		return err
	}

	groupID, err := rbac.ParseGroupPrincipal(assignment.PrincipalID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalid, "only user groups can be assigned roles")
	}
	if _, err := m.store.GetUserGroup(groupID); err != nil {
		return err
	}

	var ref *types.ResourceReference
	switch assignment.Scope {
	case types.ScopeCluster:
		assignment.ResourceGroupID, assignment.ResourceID = 0, 0
	case types.ScopeResourceGroup:
		if _, err := m.store.GetResourceGroup(assignment.ResourceGroupID); err != nil {
			return err
		}
		assignment.ResourceID = 0
	case types.ScopeResource:
		ref, err = m.resolver.ByID(assignment.ResourceID)
		if err != nil {
			return err
		}
		assignment.ResourceGroupID = 0
	default:
		return apperrors.Invalid("unknown role scope %q", assignment.Scope)
	}

	if err := m.store.CreateRoleAssignment(assignment); err != nil {
		return err
	}

	m.logger.Info().
		Uint64("assignment_id", assignment.ID).
		Str("principal", assignment.PrincipalID).
		Uint64("role_id", assignment.RoleID).
		Str("scope", string(assignment.Scope)).
		Msg("Role assigned")

	m.broker.Publish(&events.Event{
		Type:       events.EventRoleAssigned,
		ResourceID: assignment.ResourceID,
		Message:    fmt.Sprintf("role %d assigned to %s", assignment.RoleID, assignment.PrincipalID),
		Metadata: map[string]string{
			"principal": assignment.PrincipalID,
			"scope":     string(assignment.Scope),
		},
	})

	if ref != nil {
		if err := m.providers.ResourcePermissionsChanged(ctx, ref); err != nil {
			logger := log.WithResourceID(m.logger, ref.ID)
			logger.Error().Err(err).Msg("Provider failed to apply permission change")
		}
	}
	return nil
}

// RenameResource renames a resource and optionally moves it to another
// group (newGroupID zero keeps the group). The user needs resources:manage
// on the resource, and resources:deploy on the target group when moving.
func (m *Manager) RenameResource(ctx context.Context, userID, resourceID uint64, newName string, newGroupID uint64) (*types.ResourceReference, error) {
	ref, err := m.resolver.ByID(resourceID)
	if err != nil {
		return nil, err
	}
	if err := m.requireOnResource(ctx, ref, userID, types.PermissionManageResources); err != nil {
		return nil, err
	}
	if err := types.ValidateName(newName); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalid, "invalid resource name")
	}

	if newGroupID == 0 {
		newGroupID = ref.ResourceGroupID
	}
	if newGroupID != ref.ResourceGroupID {
		if _, err := m.store.GetResourceGroup(newGroupID); err != nil {
			return nil, err
		}
		if err := m.requireOnGroup(ctx, newGroupID, userID, types.PermissionDeployResources); err != nil {
			return nil, err
		}
	}

	existing, err := m.store.FindResource(newGroupID, ref.ResourceProviderName, ref.ResourceTypeName, newName)
	switch {
	case err == nil && existing.ID != resourceID:
		return nil, apperrors.Newf(apperrors.CodeConflict, "resource %s already exists in target group", newName)
	case err != nil && !apperrors.IsCode(err, apperrors.CodeNotFound):
		return nil, err
	}

	res, err := m.store.GetResource(resourceID)
	if err != nil {
		return nil, err
	}
	res.Name = newName
	res.ResourceGroupID = newGroupID
	if err := m.store.UpdateResource(res); err != nil {
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update resource: %w", err)
	}

	newRef, err := m.resolver.Reference(res)
	if err != nil {
		return nil, err
	}
	oldExternalID := ref.ExternalID()

	logger := log.WithResourceID(m.logger, resourceID)
	logger.Info().
		Str("old", oldExternalID).
		Str("new", newRef.ExternalID()).
		Msg("Resource renamed")

	if err := m.providers.ExternalResourceIdChanged(ctx, newRef, oldExternalID); err != nil {
		logger.Error().Err(err).Msg("Provider failed to apply rename")
	}

	m.broker.Publish(&events.Event{
		Type:       events.EventResourceRenamed,
		ResourceID: resourceID,
		Message:    fmt.Sprintf("%s renamed to %s", oldExternalID, newRef.ExternalID()),
		Metadata: map[string]string{
			"old_external_id": oldExternalID,
			"external_id":     newRef.ExternalID(),
		},
	})
	return newRef, nil
}
