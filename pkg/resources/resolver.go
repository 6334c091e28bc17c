// Package resources resolves stored resources into ResourceReferences bound to
// their current host and storage, and back from external ids.
package resources

import (
	"fmt"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// Resolver builds ResourceReferences from the store
type Resolver struct {
	store storage.Store
}

// NewResolver creates a resolver over store
func NewResolver(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

// ByID resolves a resource id
func (r *Resolver) ByID(id uint64) (*types.ResourceReference, error) {
	res, err := r.store.GetResource(id)
	if err != nil {
		return nil, err
	}
	return r.Reference(res)
}

// ByExternalID resolves /group/provider/type/name
func (r *Resolver) ByExternalID(externalID string) (*types.ResourceReference, error) {
	ext, err := types.ParseExternalID(externalID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalid, "invalid external id")
	}

	group, err := r.store.GetResourceGroupByName(ext.ResourceGroupName)
	if err != nil {
		return nil, err
	}

	res, err := r.store.FindResource(group.ID, ext.ResourceProviderName, ext.ResourceTypeName, ext.Name)
	if err != nil {
		return nil, err
	}
	return r.Reference(res)
}

// Reference joins a resource row with its group, storage and host
func (r *Resolver) Reference(res *types.Resource) (*types.ResourceReference, error) {
	group, err := r.store.GetResourceGroup(res.ResourceGroupID)
	if err != nil {
		return nil, fmt.Errorf("resource %d: %w", res.ID, err)
	}

	hs, err := r.store.GetHostStorage(res.StorageID)
	if err != nil {
		return nil, fmt.Errorf("resource %d: %w", res.ID, err)
	}

	host, err := r.store.GetHost(hs.HostID)
	if err != nil {
		return nil, fmt.Errorf("resource %d: %w", res.ID, err)
	}

	return &types.ResourceReference{
		ID:                   res.ID,
		Name:                 res.Name,
		ResourceGroupID:      group.ID,
		ResourceGroupName:    group.Name,
		ResourceProviderName: res.ResourceProviderName,
		ResourceTypeName:     res.ResourceTypeName,
		HostID:               host.ID,
		HostName:             host.Hostname,
		HostStoragePath:      hs.Path,
	}, nil
}
