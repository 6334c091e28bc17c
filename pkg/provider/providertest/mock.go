// Package providertest provides test doubles for resource providers.
package providertest

import (
	"context"

	"github.com/cuemby/burrow/pkg/provider"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/mock"
)

// MockProvider is a testify mock of provider.Provider. Name, ResourceTypes
// and DataIntegrityCheckSchedule are served from fields; every other method
// goes through mock expectations.
type MockProvider struct {
	mock.Mock

	ProviderName string
	Types        []provider.TypeDefinition
	Schedule     *types.Schedule
}

var _ provider.Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock provider declaring the given types
func NewMockProvider(name string, typeDefs ...provider.TypeDefinition) *MockProvider {
	return &MockProvider{ProviderName: name, Types: typeDefs}
}

func (m *MockProvider) Name() string { return m.ProviderName }

func (m *MockProvider) ResourceTypes() []provider.TypeDefinition { return m.Types }

func (m *MockProvider) DataIntegrityCheckSchedule() *types.Schedule { return m.Schedule }

func (m *MockProvider) ProvideResource(ctx context.Context, properties map[string]any, dctx *provider.DeploymentContext) (*provider.DeploymentResult, error) {
	args := m.Called(ctx, properties, dctx)
	if v := args.Get(0); v != nil {
		return v.(*provider.DeploymentResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) RehostResource(ctx context.Context, oldRef *types.ResourceReference, properties map[string]any, dctx *provider.DeploymentContext) error {
	args := m.Called(ctx, oldRef, properties, dctx)
	return args.Error(0)
}

func (m *MockProvider) CheckResource(ctx context.Context, ref *types.ResourceReference, checkType types.CheckType) error {
	args := m.Called(ctx, ref, checkType)
	return args.Error(0)
}

func (m *MockProvider) QueryResourceState(ctx context.Context, ref *types.ResourceReference) (*provider.ResourceState, error) {
	args := m.Called(ctx, ref)
	if v := args.Get(0); v != nil {
		return v.(*provider.ResourceState), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) ResourcePermissionsChanged(ctx context.Context, ref *types.ResourceReference) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockProvider) ExternalResourceIdChanged(ctx context.Context, ref *types.ResourceReference, oldExternalID string) error {
	args := m.Called(ctx, ref, oldExternalID)
	return args.Error(0)
}

// TypeValidator accepts properties whose "type" field equals the schema name
type TypeValidator struct{}

func (TypeValidator) Validate(properties map[string]any, schemaName string) bool {
	t, _ := properties["type"].(string)
	return t == schemaName
}
