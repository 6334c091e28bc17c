package provider

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// ExecutionError reports a provider that panicked during an operation
type ExecutionError struct {
	Provider  string
	Operation string
	Value     any
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("provider %s panicked in %s: %v", e.Provider, e.Operation, e.Value)
}

// Registry is the ordered set of registered providers. Lookups walk
// providers in registration order and type definitions in declaration order.
type Registry struct {
	validator Validator
	logger    zerolog.Logger

	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates an empty registry validating properties with v
func NewRegistry(v Validator) *Registry {
	return &Registry{
		validator: v,
		logger:    log.WithComponent("provider"),
	}
}

// Register appends p. Provider names must be unique.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return apperrors.Invalid("cannot register nil provider")
	}
	name := p.Name()
	if name == "" {
		return apperrors.Invalid("provider has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.providers {
		if existing.Name() == name {
			return apperrors.Newf(apperrors.CodeConflict, "provider %s already registered", name)
		}
	}
	r.providers = append(r.providers, p)

	r.logger.Info().
		Str("provider", name).
		Int("types", len(p.ResourceTypes())).
		Msg("Resource provider registered")
	return nil
}

// Providers returns the registered providers in registration order
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Provider(nil), r.providers...)
}

// FindByProperties returns the first provider and type whose schema accepts properties
func (r *Registry) FindByProperties(properties map[string]any) (Provider, TypeDefinition, error) {
	for _, p := range r.Providers() {
		for _, td := range p.ResourceTypes() {
			if r.validator.Validate(properties, td.SchemaName) {
				return p, td, nil
			}
		}
	}
	return nil, TypeDefinition{}, apperrors.Invalid("no resource provider accepts the given properties")
}

// FindByName returns the provider registered under name
func (r *Registry) FindByName(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// FindByResource returns the provider owning ref. A stored resource whose
// provider is not registered indicates corrupted data.
func (r *Registry) FindByResource(ref *types.ResourceReference) (Provider, error) {
	p, ok := r.FindByName(ref.ResourceProviderName)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeInternal,
			"resource %d references unknown provider %q", ref.ID, ref.ResourceProviderName)
	}
	return p, nil
}

// FindTypeDefinition returns the provider and type definition of ref
func (r *Registry) FindTypeDefinition(ref *types.ResourceReference) (Provider, TypeDefinition, error) {
	p, err := r.FindByResource(ref)
	if err != nil {
		return nil, TypeDefinition{}, err
	}
	for _, td := range p.ResourceTypes() {
		if td.TypeName == ref.ResourceTypeName {
			return p, td, nil
		}
	}
	return nil, TypeDefinition{}, apperrors.Newf(apperrors.CodeInternal,
		"provider %s has no resource type %q", p.Name(), ref.ResourceTypeName)
}

// ProvideResource calls p.ProvideResource, converting a panic into an error
func (r *Registry) ProvideResource(ctx context.Context, p Provider, properties map[string]any, dctx *DeploymentContext) (result *DeploymentResult, err error) {
	err = r.guard(p.Name(), "ProvideResource", func() error {
		var callErr error
		result, callErr = p.ProvideResource(ctx, properties, dctx)
		return callErr
	})
	return result, err
}

// RehostResource calls p.RehostResource, converting a panic into an error
func (r *Registry) RehostResource(ctx context.Context, p Provider, oldRef *types.ResourceReference, properties map[string]any, dctx *DeploymentContext) error {
	return r.guard(p.Name(), "RehostResource", func() error {
		return p.RehostResource(ctx, oldRef, properties, dctx)
	})
}

// CheckResource runs a health check through the owning provider
func (r *Registry) CheckResource(ctx context.Context, ref *types.ResourceReference, checkType types.CheckType) error {
	p, err := r.FindByResource(ref)
	if err != nil {
		return err
	}
	return r.guard(p.Name(), "CheckResource", func() error {
		return p.CheckResource(ctx, ref, checkType)
	})
}

// QueryResourceState asks the owning provider for the live state. Any
// failure, including a panic, is reported as StateDown with diagnostics.
func (r *Registry) QueryResourceState(ctx context.Context, ref *types.ResourceReference) *ResourceState {
	p, err := r.FindByResource(ref)
	if err != nil {
		return &ResourceState{State: types.StateDown, Context: err.Error()}
	}

	var state *ResourceState
	err = r.guard(p.Name(), "QueryResourceState", func() error {
		var callErr error
		state, callErr = p.QueryResourceState(ctx, ref)
		return callErr
	})
	if err != nil {
		return &ResourceState{State: types.StateDown, Context: err.Error()}
	}
	return state
}

// ResourcePermissionsChanged forwards the notification to the owning provider
func (r *Registry) ResourcePermissionsChanged(ctx context.Context, ref *types.ResourceReference) error {
	p, err := r.FindByResource(ref)
	if err != nil {
		return err
	}
	return r.guard(p.Name(), "ResourcePermissionsChanged", func() error {
		return p.ResourcePermissionsChanged(ctx, ref)
	})
}

// ExternalResourceIdChanged forwards the notification to the owning provider
func (r *Registry) ExternalResourceIdChanged(ctx context.Context, ref *types.ResourceReference, oldExternalID string) error {
	p, err := r.FindByResource(ref)
	if err != nil {
		return err
	}
	return r.guard(p.Name(), "ExternalResourceIdChanged", func() error {
		return p.ExternalResourceIdChanged(ctx, ref, oldExternalID)
	})
}

// DataIntegrityCheckSchedule returns the owning provider's schedule, or nil
func (r *Registry) DataIntegrityCheckSchedule(ref *types.ResourceReference) (*types.Schedule, error) {
	p, err := r.FindByResource(ref)
	if err != nil {
		return nil, err
	}
	return p.DataIntegrityCheckSchedule(), nil
}

func (r *Registry) guard(provider, operation string, fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			metrics.ProviderPanicsTotal.WithLabelValues(provider).Inc()
			r.logger.Error().
				Str("provider", provider).
				Str("operation", operation).
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Msg("Provider panicked")
			err = &ExecutionError{Provider: provider, Operation: operation, Value: v}
		}
	}()
	return fn()
}
