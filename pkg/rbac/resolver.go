// Package rbac answers whether a user holds a permission on a resource,
// a resource group or the whole cluster.
//
// Grants flow downwards: a role assigned on the cluster applies to every
// group and resource, one assigned on a group applies to the resources in
// it. Role assignments name principals, of which only user groups are
// supported.
package rbac

import (
	"context"
	"slices"
	"strings"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// ErrUnsupportedPrincipal is returned for role assignments whose principal
// is not a user group
var ErrUnsupportedPrincipal = apperrors.New(apperrors.CodeInternal, "unsupported principal")

// Resolver evaluates role assignments. Nothing is cached: every check reads
// assignments, roles and group membership afresh.
type Resolver struct {
	store    storage.Store
	identity Identity
	logger   zerolog.Logger
}

// NewResolver creates a permission resolver
func NewResolver(store storage.Store, identity Identity) *Resolver {
	return &Resolver{
		store:    store,
		identity: identity,
		logger:   log.WithComponent("rbac"),
	}
}

// Matches reports whether a granted permission covers the required one.
// "*" covers everything and "prefix:*" covers "prefix:<anything>".
func Matches(granted, required string) bool {
	if granted == "*" || granted == required {
		return true
	}
	if prefix, ok := strings.CutSuffix(granted, ":*"); ok {
		resource, _, found := strings.Cut(required, ":")
		return found && resource == prefix
	}
	return false
}

// HasUserPermissionOnResourceScope checks the resource, then its group,
// then the cluster
func (r *Resolver) HasUserPermissionOnResourceScope(ctx context.Context, ref *types.ResourceReference, userID uint64, permission string) (bool, error) {
	ok, err := r.check(types.ScopeResource, func(a *types.RoleAssignment) bool {
		return a.Scope == types.ScopeResource && a.ResourceID == ref.ID
	}, userID, permission)
	if err != nil || ok {
		return ok, err
	}
	return r.HasUserPermissionOnResourceGroupScope(ctx, ref.ResourceGroupID, userID, permission)
}

// HasUserPermissionOnResourceGroupScope checks the group, then the cluster
func (r *Resolver) HasUserPermissionOnResourceGroupScope(ctx context.Context, groupID uint64, userID uint64, permission string) (bool, error) {
	ok, err := r.check(types.ScopeResourceGroup, func(a *types.RoleAssignment) bool {
		return a.Scope == types.ScopeResourceGroup && a.ResourceGroupID == groupID
	}, userID, permission)
	if err != nil || ok {
		return ok, err
	}
	return r.HasUserClusterWidePermission(ctx, userID, permission)
}

// HasUserClusterWidePermission checks cluster-scoped assignments only
func (r *Resolver) HasUserClusterWidePermission(ctx context.Context, userID uint64, permission string) (bool, error) {
	return r.check(types.ScopeCluster, func(a *types.RoleAssignment) bool {
		return a.Scope == types.ScopeCluster
	}, userID, permission)
}

// QueryResourceIDsThatUserHasAccessTo returns, in ascending order, the
// resources the user can read through a group or a direct assignment
func (r *Resolver) QueryResourceIDsThatUserHasAccessTo(ctx context.Context, userID uint64) ([]uint64, error) {
	groups, err := r.store.ListResourceGroups()
	if err != nil {
		return nil, err
	}

	var ids []uint64
	for _, group := range groups {
		groupIDs, err := r.QueryResourceIDsOfResourcesInResourceGroupThatUserHasAccessTo(ctx, userID, group.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, groupIDs...)
	}

	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// QueryResourceIDsOfResourcesInResourceGroupThatUserHasAccessTo returns
// every resource of a readable group, otherwise only the directly
// assigned ones
func (r *Resolver) QueryResourceIDsOfResourcesInResourceGroupThatUserHasAccessTo(ctx context.Context, userID, groupID uint64) ([]uint64, error) {
	all, err := r.store.ListResourcesByGroup(groupID)
	if err != nil {
		return nil, err
	}

	readable, err := r.HasUserPermissionOnResourceGroupScope(ctx, groupID, userID, types.PermissionReadResources)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(all))
	if readable {
		for _, res := range all {
			ids = append(ids, res.ID)
		}
		slices.Sort(ids)
		return ids, nil
	}

	direct, err := r.directlyReadable(userID)
	if err != nil {
		return nil, err
	}
	for _, res := range all {
		if direct[res.ID] {
			ids = append(ids, res.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// directlyReadable returns the resources with a resource-scoped read grant
func (r *Resolver) directlyReadable(userID uint64) (map[uint64]bool, error) {
	assignments, err := r.store.ListRoleAssignments()
	if err != nil {
		return nil, err
	}

	out := make(map[uint64]bool)
	for _, a := range assignments {
		if a.Scope != types.ScopeResource || out[a.ResourceID] {
			continue
		}
		ok, err := r.grants(a, userID, types.PermissionReadResources)
		if err != nil {
			return nil, err
		}
		if ok {
			out[a.ResourceID] = true
		}
	}
	return out, nil
}

func (r *Resolver) check(scope types.RoleScope, match func(*types.RoleAssignment) bool, userID uint64, permission string) (bool, error) {
	assignments, err := r.store.ListRoleAssignments()
	if err != nil {
		return false, err
	}

	for _, a := range assignments {
		if !match(a) {
			continue
		}
		ok, err := r.grants(a, userID, permission)
		if err != nil {
			r.logger.Error().Err(err).
				Uint64("assignment_id", a.ID).
				Str("principal", a.PrincipalID).
				Msg("Cannot evaluate role assignment")
			return false, err
		}
		if ok {
			metrics.PermissionChecksTotal.WithLabelValues(string(scope), metrics.ResultAllowed).Inc()
			return true, nil
		}
	}

	metrics.PermissionChecksTotal.WithLabelValues(string(scope), metrics.ResultDenied).Inc()
	return false, nil
}

// grants reports whether assignment gives userID the permission. The role
// is consulted before the principal is expanded.
func (r *Resolver) grants(a *types.RoleAssignment, userID uint64, permission string) (bool, error) {
	role, err := r.store.GetRole(a.RoleID)
	if err != nil {
		return false, err
	}
	if !slices.ContainsFunc(role.Permissions, func(p string) bool { return Matches(p, permission) }) {
		return false, nil
	}
	return r.containsUser(a.PrincipalID, userID)
}

func (r *Resolver) containsUser(principal string, userID uint64) (bool, error) {
	groupID, err := ParseGroupPrincipal(principal)
	if err != nil {
		return false, err
	}
	members, err := r.identity.ExpandGroupMembers(groupID)
	if err != nil {
		return false, err
	}
	return slices.Contains(members, userID), nil
}
