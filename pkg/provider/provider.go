package provider

import (
	"context"

	"github.com/cuemby/burrow/pkg/types"
)

// Provider implements the lifecycle of one or more resource types.
//
// Implementations report failures by returning errors. A panic escaping a
// provider is recovered by the Registry and treated as an ExecutionError.
type Provider interface {
	// Name uniquely identifies the provider
	Name() string

	// ResourceTypes declares the types the provider can deploy, in match order
	ResourceTypes() []TypeDefinition

	// ProvideResource provisions a new resource. It may block for a long time.
	ProvideResource(ctx context.Context, properties map[string]any, dctx *DeploymentContext) (*DeploymentResult, error)

	// RehostResource moves an existing resource to the host and storage in dctx
	RehostResource(ctx context.Context, oldRef *types.ResourceReference, properties map[string]any, dctx *DeploymentContext) error

	// CheckResource runs one health check; nil means the check passed
	CheckResource(ctx context.Context, ref *types.ResourceReference, checkType types.CheckType) error

	// QueryResourceState reports the live operational state
	QueryResourceState(ctx context.Context, ref *types.ResourceReference) (*ResourceState, error)

	// ResourcePermissionsChanged is called after role assignments on the resource change
	ResourcePermissionsChanged(ctx context.Context, ref *types.ResourceReference) error

	// ExternalResourceIdChanged is called after the resource was renamed or moved to another group
	ExternalResourceIdChanged(ctx context.Context, ref *types.ResourceReference, oldExternalID string) error

	// DataIntegrityCheckSchedule returns nil when the provider has no data integrity check
	DataIntegrityCheckSchedule() *types.Schedule
}

// TypeDefinition describes one resource type a provider can deploy
type TypeDefinition struct {
	TypeName        string
	SchemaName      string   // Schema the deployment properties must satisfy
	FileSystemType  string   // Host storage filesystem the resource needs
	RequiredModules []string // Host modules that must be installed first
}

// DeploymentContext tells a provider where a resource is being placed
type DeploymentContext struct {
	Reference   *types.ResourceReference
	HostID      uint64
	StoragePath string
	UserID      uint64
}

// DeploymentResult is returned by a successful ProvideResource
type DeploymentResult struct {
	// Config is optional provider configuration, sealed at rest
	Config map[string]any
}

// ResourceState is the live state of a resource as seen by its provider
type ResourceState struct {
	State   types.OperationalState
	Context string // Free-form diagnostics
}

// Validator checks deployment properties against a named schema
type Validator interface {
	Validate(properties map[string]any, schemaName string) bool
}
