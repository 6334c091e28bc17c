package provider_test

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/provider"
	"github.com/cuemby/burrow/pkg/provider/providertest"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func vmType(name string) provider.TypeDefinition {
	return provider.TypeDefinition{TypeName: name, SchemaName: name, FileSystemType: "ext4"}
}

func newRegistry(t *testing.T, providers ...provider.Provider) *provider.Registry {
	t.Helper()
	r := provider.NewRegistry(providertest.TypeValidator{})
	for _, p := range providers {
		require.NoError(t, r.Register(p))
	}
	return r
}

func ref(providerName, typeName string) *types.ResourceReference {
	return &types.ResourceReference{ID: 1, Name: "r1", ResourceProviderName: providerName, ResourceTypeName: typeName}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := newRegistry(t, providertest.NewMockProvider("vm", vmType("qemu")))

	err := r.Register(providertest.NewMockProvider("vm", vmType("lxc")))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	err = r.Register(providertest.NewMockProvider(""))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalid))

	assert.Len(t, r.Providers(), 1)
}

func TestFindByPropertiesFirstMatchWins(t *testing.T) {
	first := providertest.NewMockProvider("first", vmType("share"), vmType("dns"))
	second := providertest.NewMockProvider("second", vmType("dns"))
	r := newRegistry(t, first, second)

	p, td, err := r.FindByProperties(map[string]any{"type": "dns"})
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name())
	assert.Equal(t, "dns", td.TypeName)

	_, _, err = r.FindByProperties(map[string]any{"type": "gateway"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalid))
}

func TestFindByResource(t *testing.T) {
	r := newRegistry(t, providertest.NewMockProvider("vm", vmType("qemu")))

	p, td, err := r.FindTypeDefinition(ref("vm", "qemu"))
	require.NoError(t, err)
	assert.Equal(t, "vm", p.Name())
	assert.Equal(t, "qemu", td.TypeName)

	_, err = r.FindByResource(ref("gone", "qemu"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))

	_, _, err = r.FindTypeDefinition(ref("vm", "lxc"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))
}

func TestQueryResourceStateNeverFails(t *testing.T) {
	ctx := context.Background()

	t.Run("provider answer passes through", func(t *testing.T) {
		p := providertest.NewMockProvider("vm", vmType("qemu"))
		p.On("QueryResourceState", mock.Anything, mock.Anything).
			Return(&provider.ResourceState{State: types.StateRunning}, nil)

		state := newRegistry(t, p).QueryResourceState(ctx, ref("vm", "qemu"))
		assert.Equal(t, types.StateRunning, state.State)
	})

	t.Run("error becomes down", func(t *testing.T) {
		p := providertest.NewMockProvider("vm", vmType("qemu"))
		p.On("QueryResourceState", mock.Anything, mock.Anything).
			Return(nil, errors.New("ssh: connection refused"))

		state := newRegistry(t, p).QueryResourceState(ctx, ref("vm", "qemu"))
		assert.Equal(t, types.StateDown, state.State)
		assert.Contains(t, state.Context, "connection refused")
	})

	t.Run("panic becomes down", func(t *testing.T) {
		p := providertest.NewMockProvider("vm", vmType("qemu"))
		p.On("QueryResourceState", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { panic("nil map") })

		state := newRegistry(t, p).QueryResourceState(ctx, ref("vm", "qemu"))
		assert.Equal(t, types.StateDown, state.State)
		assert.Contains(t, state.Context, "nil map")
	})

	t.Run("unknown provider becomes down", func(t *testing.T) {
		state := newRegistry(t).QueryResourceState(ctx, ref("gone", "qemu"))
		assert.Equal(t, types.StateDown, state.State)
	})
}

func TestPanicsBecomeExecutionErrors(t *testing.T) {
	ctx := context.Background()
	p := providertest.NewMockProvider("vm", vmType("qemu"))
	p.On("CheckResource", mock.Anything, mock.Anything, types.CheckAvailability).
		Run(func(mock.Arguments) { panic("boom") })
	p.On("ProvideResource", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("boom") })
	r := newRegistry(t, p)

	err := r.CheckResource(ctx, ref("vm", "qemu"), types.CheckAvailability)
	var execErr *provider.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "CheckResource", execErr.Operation)
	assert.Equal(t, "vm", execErr.Provider)

	result, err := r.ProvideResource(ctx, p, map[string]any{}, &provider.DeploymentContext{})
	assert.Nil(t, result)
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "ProvideResource", execErr.Operation)
}

func TestNotificationsAreForwarded(t *testing.T) {
	ctx := context.Background()
	p := providertest.NewMockProvider("vm", vmType("qemu"))
	p.On("ResourcePermissionsChanged", mock.Anything, mock.Anything).Return(nil)
	p.On("ExternalResourceIdChanged", mock.Anything, mock.Anything, "/old/vm/qemu/r1").Return(nil)
	r := newRegistry(t, p)

	require.NoError(t, r.ResourcePermissionsChanged(ctx, ref("vm", "qemu")))
	require.NoError(t, r.ExternalResourceIdChanged(ctx, ref("vm", "qemu"), "/old/vm/qemu/r1"))
	p.AssertExpectations(t)
}

func TestDataIntegrityCheckSchedule(t *testing.T) {
	weekly := types.Weekly(2)
	withSchedule := providertest.NewMockProvider("share", vmType("smb"))
	withSchedule.Schedule = &weekly
	r := newRegistry(t, withSchedule, providertest.NewMockProvider("vm", vmType("qemu")))

	s, err := r.DataIntegrityCheckSchedule(ref("share", "smb"))
	require.NoError(t, err)
	assert.Equal(t, &weekly, s)

	s, err = r.DataIntegrityCheckSchedule(ref("vm", "qemu"))
	require.NoError(t, err)
	assert.Nil(t, s)
}
