package deploy

import (
	"context"
	"fmt"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/provider"
	"github.com/cuemby/burrow/pkg/types"
)

// RehostResource moves a resource to targetHostID. The target properties
// must resolve to the resource's current provider and type. The resource
// keeps its id; the returned reference points at the new host and storage.
func (d *Deployer) RehostResource(ctx context.Context, ref *types.ResourceReference, targetProperties map[string]any, targetHostID, userID uint64) (*types.ResourceReference, error) {
	p, td, err := d.providers.FindByProperties(targetProperties)
	if err != nil {
		return nil, err
	}
	if p.Name() != ref.ResourceProviderName || td.TypeName != ref.ResourceTypeName {
		return nil, apperrors.Invalid("cannot rehost %s/%s as %s/%s",
			ref.ResourceProviderName, ref.ResourceTypeName, p.Name(), td.TypeName)
	}

	host, err := d.store.GetHost(targetHostID)
	if err != nil {
		return nil, err
	}

	hs, err := d.prepareHost(ctx, targetHostID, td)
	if err != nil {
		return nil, err
	}

	d.begin(ref.ID)
	defer d.end(ref.ID)

	if err := d.health.UpdateHealth(ctx, ref.ID, types.CheckAvailability, types.HealthInDeployment, ""); err != nil {
		return nil, err
	}

	newRef := *ref
	newRef.HostID = host.ID
	newRef.HostName = host.Hostname
	newRef.HostStoragePath = hs.Path

	logger := log.WithResourceID(d.logger, ref.ID)
	logger.Info().
		Str("from_host", ref.HostName).
		Str("to_host", host.Hostname).
		Str("storage", hs.Path).
		Msg("Rehosting resource")

	dctx := &provider.DeploymentContext{
		Reference:   &newRef,
		HostID:      host.ID,
		StoragePath: hs.Path,
		UserID:      userID,
	}
	if err := d.providers.RehostResource(ctx, p, ref, targetProperties, dctx); err != nil {
		metrics.RehostsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		logger.Error().Err(err).Msg("Rehost failed")
		return nil, err
	}

	res, err := d.store.GetResource(ref.ID)
	if err != nil {
		return nil, err
	}
	res.StorageID = hs.ID
	if err := d.store.UpdateResource(res); err != nil {
		return nil, fmt.Errorf("failed to update resource storage: %w", err)
	}
	metrics.RehostsTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	if _, err := d.health.CheckResourceAvailability(ctx, ref.ID); err != nil {
		logger.Error().Err(err).Msg("Availability check after rehost failed")
	}

	d.broker.Publish(&events.Event{
		Type:       events.EventResourceRehosted,
		ResourceID: ref.ID,
		Message:    fmt.Sprintf("resource %s moved to %s", ref.ExternalID(), host.Hostname),
		Metadata: map[string]string{
			"from_host": ref.HostName,
			"to_host":   host.Hostname,
		},
	})

	return &newRef, nil
}
