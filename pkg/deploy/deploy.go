package deploy

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/hostagent"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/placement"
	"github.com/cuemby/burrow/pkg/provider"
	"github.com/cuemby/burrow/pkg/resources"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HealthRecorder is the part of the health manager deployments drive
type HealthRecorder interface {
	UpdateHealth(ctx context.Context, resourceID uint64, checkType types.CheckType, status types.HealthStatus, diagnostics string) error
	CheckResourceAvailability(ctx context.Context, resourceID uint64) (types.HealthStatus, error)
	ScheduleResourceChecks(ctx context.Context, resourceID uint64) error
}

// Deployer runs deployments and rehosts
type Deployer struct {
	store     storage.Store
	resolver  *resources.Resolver
	providers *provider.Registry
	agent     hostagent.Agent
	health    HealthRecorder
	configs   *security.ConfigStore
	broker    *events.Broker
	logger    zerolog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[uint64]struct{}
}

// NewDeployer creates a deployer. broker may be nil.
func NewDeployer(
	store storage.Store,
	providers *provider.Registry,
	agent hostagent.Agent,
	health HealthRecorder,
	configs *security.ConfigStore,
	broker *events.Broker,
) *Deployer {
	return &Deployer{
		store:     store,
		resolver:  resources.NewResolver(store),
		providers: providers,
		agent:     agent,
		health:    health,
		configs:   configs,
		broker:    broker,
		logger:    log.WithComponent("deploy"),
		inFlight:  make(map[uint64]struct{}),
	}
}

// StartInstanceDeployment creates a resource from properties in a group
// on a host and starts provisioning it in the background. The returned
// reference is valid immediately.
func (d *Deployer) StartInstanceDeployment(ctx context.Context, properties map[string]any, groupID, hostID, userID uint64) (*types.ResourceReference, error) {
	p, td, err := d.providers.FindByProperties(properties)
	if err != nil {
		return nil, err
	}

	name, _ := properties["name"].(string)
	if err := types.ValidateName(name); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalid, "invalid resource name")
	}

	group, err := d.store.GetResourceGroup(groupID)
	if err != nil {
		return nil, err
	}
	if _, err := d.store.GetHost(hostID); err != nil {
		return nil, err
	}

	_, err = d.store.FindResource(group.ID, p.Name(), td.TypeName, name)
	switch {
	case err == nil:
		ext := types.FormatExternalID(types.ExternalID{
			ResourceGroupName:    group.Name,
			ResourceProviderName: p.Name(),
			ResourceTypeName:     td.TypeName,
			Name:                 name,
		})
		return nil, apperrors.Newf(apperrors.CodeConflict, "resource already exists: %s", ext)
	case !apperrors.IsCode(err, apperrors.CodeNotFound):
		return nil, err
	}

	hs, err := d.prepareHost(ctx, hostID, td)
	if err != nil {
		return nil, err
	}

	res := &types.Resource{
		Name:                 name,
		ResourceGroupID:      group.ID,
		ResourceProviderName: p.Name(),
		ResourceTypeName:     td.TypeName,
		StorageID:            hs.ID,
		CreatedAt:            time.Now(),
	}
	if err := d.store.CreateResource(res); err != nil {
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	if err := d.health.UpdateHealth(ctx, res.ID, types.CheckAvailability, types.HealthInDeployment, ""); err != nil {
		return nil, err
	}

	ref, err := d.resolver.Reference(res)
	if err != nil {
		return nil, err
	}

	deploymentID := uuid.NewString()
	logger := log.WithResourceID(d.logger, res.ID).With().Str("deployment_id", deploymentID).Logger()
	logger.Info().
		Str("external_id", ref.ExternalID()).
		Str("host", ref.HostName).
		Str("storage", ref.HostStoragePath).
		Msg("Deployment started")

	dctx := &provider.DeploymentContext{
		Reference:   ref,
		HostID:      hostID,
		StoragePath: hs.Path,
		UserID:      userID,
	}

	d.begin(res.ID)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.end(res.ID)
		d.provision(p, properties, dctx, deploymentID, logger)
	}()

	return ref, nil
}

// Wait blocks until all background provisioning has finished
func (d *Deployer) Wait() {
	d.wg.Wait()
}

// IsDeploying reports whether a deployment or rehost of the resource is running
func (d *Deployer) IsDeploying(resourceID uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[resourceID]
	return ok
}

func (d *Deployer) begin(resourceID uint64) {
	d.mu.Lock()
	d.inFlight[resourceID] = struct{}{}
	d.mu.Unlock()
}

func (d *Deployer) end(resourceID uint64) {
	d.mu.Lock()
	delete(d.inFlight, resourceID)
	d.mu.Unlock()
}

// prepareHost installs the modules a type needs and picks its storage
func (d *Deployer) prepareHost(ctx context.Context, hostID uint64, td provider.TypeDefinition) (*types.HostStorage, error) {
	for _, module := range td.RequiredModules {
		if err := d.agent.EnsureModuleIsInstalled(ctx, hostID, module); err != nil {
			return nil, fmt.Errorf("failed to install module %s: %w", module, err)
		}
	}

	storages, err := d.store.ListHostStorages(hostID)
	if err != nil {
		return nil, err
	}
	hs, err := placement.FindOptimalStorage(ctx, d.agent, storages, td.FileSystemType)
	if err != nil {
		return nil, err
	}
	logger := log.WithHostID(d.logger, hostID)
	logger.Debug().
		Str("type", td.TypeName).
		Str("storage", hs.Path).
		Int("candidates", len(storages)).
		Msg("Storage selected")
	return hs, nil
}

// provision runs detached from the request that started it
func (d *Deployer) provision(p provider.Provider, properties map[string]any, dctx *provider.DeploymentContext, deploymentID string, logger zerolog.Logger) {
	ctx := context.Background()
	id := dctx.Reference.ID

	timer := metrics.NewTimer()
	result, err := d.providers.ProvideResource(ctx, p, properties, dctx)
	timer.ObserveDuration(metrics.DeploymentDuration)

	if err == nil && result != nil && result.Config != nil {
		err = d.configs.Save(id, result.Config)
	}

	if err != nil {
		d.fail(ctx, id, deploymentID, err, logger)
		return
	}

	metrics.DeploymentsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	logger.Info().Dur("duration", timer.Duration()).Msg("Resource provisioned")

	if _, err := d.health.CheckResourceAvailability(ctx, id); err != nil {
		logger.Error().Err(err).Msg("Availability check after deployment failed")
	}
	if err := d.health.ScheduleResourceChecks(ctx, id); err != nil {
		logger.Error().Err(err).Msg("Failed to schedule health checks")
	}

	d.broker.Publish(&events.Event{
		Type:       events.EventResourceDeployed,
		ResourceID: id,
		Message:    fmt.Sprintf("resource %s deployed", dctx.Reference.ExternalID()),
		Metadata:   map[string]string{"deployment_id": deploymentID},
	})
}

func (d *Deployer) fail(ctx context.Context, resourceID uint64, deploymentID string, cause error, logger zerolog.Logger) {
	metrics.DeploymentsTotal.WithLabelValues(metrics.ResultFailure).Inc()
	logger.Error().Err(cause).Msg("Deployment failed")

	if err := d.health.UpdateHealth(ctx, resourceID, types.CheckAvailability, types.HealthCorrupt, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("Failed to record deployment failure")
	}

	d.broker.Publish(&events.Event{
		Type:       events.EventResourceDeploymentFailed,
		ResourceID: resourceID,
		Message:    cause.Error(),
		Metadata:   map[string]string{"deployment_id": deploymentID},
	})
}
