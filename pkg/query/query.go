// Package query builds read views of resources that combine their
// identity with their aggregated health and live operational state.
package query

import (
	"context"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/provider"
	"github.com/cuemby/burrow/pkg/rbac"
	"github.com/cuemby/burrow/pkg/resources"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// HealthSource reports the aggregated health of a resource
type HealthSource interface {
	RequestHealthStatus(ctx context.Context, resourceID uint64) (types.HealthStatus, error)
}

// ResourceOverview is what a client sees of a resource
type ResourceOverview struct {
	Reference        *types.ResourceReference
	ExternalID       string
	HealthStatus     types.HealthStatus
	OperationalState types.OperationalState
	// StateContext holds provider diagnostics for the operational state
	StateContext string
}

// Service answers resource queries
type Service struct {
	resolver    *resources.Resolver
	providers   *provider.Registry
	health      HealthSource
	permissions *rbac.Resolver
	logger      zerolog.Logger
}

// NewService creates a query service
func NewService(store storage.Store, providers *provider.Registry, health HealthSource, permissions *rbac.Resolver) *Service {
	return &Service{
		resolver:    resources.NewResolver(store),
		providers:   providers,
		health:      health,
		permissions: permissions,
		logger:      log.WithComponent("query"),
	}
}

// Overview returns the overview of one resource. The provider is only
// asked for the live state when the resource is healthy; any other health
// status reports the resource as stopped.
func (s *Service) Overview(ctx context.Context, resourceID uint64) (*ResourceOverview, error) {
	ref, err := s.resolver.ByID(resourceID)
	if err != nil {
		return nil, err
	}
	return s.overview(ctx, ref)
}

// Overviews returns overviews in the order of ids
func (s *Service) Overviews(ctx context.Context, ids []uint64) ([]*ResourceOverview, error) {
	out := make([]*ResourceOverview, 0, len(ids))
	for _, id := range ids {
		ov, err := s.Overview(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, ov)
	}
	return out, nil
}

// ListResources returns every resource the user can read
func (s *Service) ListResources(ctx context.Context, userID uint64) ([]*ResourceOverview, error) {
	ids, err := s.permissions.QueryResourceIDsThatUserHasAccessTo(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Overviews(ctx, ids)
}

// ListGroupResources returns the resources of a group the user can read
func (s *Service) ListGroupResources(ctx context.Context, userID, groupID uint64) ([]*ResourceOverview, error) {
	ids, err := s.permissions.QueryResourceIDsOfResourcesInResourceGroupThatUserHasAccessTo(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	return s.Overviews(ctx, ids)
}

func (s *Service) overview(ctx context.Context, ref *types.ResourceReference) (*ResourceOverview, error) {
	status, err := s.health.RequestHealthStatus(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	ov := &ResourceOverview{
		Reference:        ref,
		ExternalID:       ref.ExternalID(),
		HealthStatus:     status,
		OperationalState: types.StateStopped,
	}
	if status != types.HealthUp {
		return ov, nil
	}

	state := s.providers.QueryResourceState(ctx, ref)
	if state == nil || !state.State.Valid() {
		logger := log.WithResourceID(s.logger, ref.ID)
		logger.Warn().
			Str("provider", ref.ResourceProviderName).
			Msg("Provider returned a malformed state")
		ov.HealthStatus = types.HealthCorrupt
		return ov, nil
	}

	ov.OperationalState = state.State
	ov.StateContext = state.Context
	return ov, nil
}
