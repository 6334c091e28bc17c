// Package placement chooses the host storage a resource is deployed to.
package placement

import (
	"context"
	"fmt"
	"slices"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/hostagent"
	"github.com/cuemby/burrow/pkg/types"
)

// Candidate is a storage with its measured free space and score
type Candidate struct {
	Storage *types.HostStorage
	Free    uint64
	Score   float64
}

// FindOptimalStorage picks the storage with the most free space among those
// formatted with fsType, or among all storages when fsType is empty. Scores
// are free/maxFree; ties go to the storage registered first. No matching
// storage is a NotFound error.
func FindOptimalStorage(ctx context.Context, agent hostagent.Agent, storages []*types.HostStorage, fsType string) (*types.HostStorage, error) {
	candidates, err := Score(ctx, agent, filterByFileSystem(storages, fsType))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apperrors.NotFound("no host storage with filesystem %s", fsType)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best.Storage, nil
}

// Score measures every storage through the host agent, in registration order
func Score(ctx context.Context, agent hostagent.Agent, storages []*types.HostStorage) ([]Candidate, error) {
	ordered := slices.Clone(storages)
	slices.SortStableFunc(ordered, func(a, b *types.HostStorage) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	candidates := make([]Candidate, 0, len(ordered))
	var maxFree uint64
	for _, hs := range ordered {
		free, err := agent.QueryFreeSpace(ctx, hs.HostID, hs.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to query free space of %s: %w", hs.Path, err)
		}
		maxFree = max(maxFree, free)
		candidates = append(candidates, Candidate{Storage: hs, Free: free})
	}

	for i := range candidates {
		if maxFree > 0 {
			candidates[i].Score = float64(candidates[i].Free) / float64(maxFree)
		}
	}
	return candidates, nil
}

func filterByFileSystem(storages []*types.HostStorage, fsType string) []*types.HostStorage {
	var matching []*types.HostStorage
	for _, hs := range storages {
		if fsType == "" || hs.FileSystemType == fsType {
			matching = append(matching, hs)
		}
	}
	return matching
}
