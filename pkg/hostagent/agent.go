// Package hostagent is the control plane's view of the agents running on
// managed hosts: installing host modules and measuring free storage.
package hostagent

import (
	"context"
	"fmt"

	"github.com/cuemby/burrow/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Agent talks to the agent on a managed host
type Agent interface {
	// EnsureModuleIsInstalled blocks until module is installed on the host
	EnsureModuleIsInstalled(ctx context.Context, hostID uint64, module string) error

	// QueryFreeSpace returns the free bytes of the filesystem mounted at path
	QueryFreeSpace(ctx context.Context, hostID uint64, path string) (uint64, error)
}

// Deduplicate wraps agent so that concurrent identical requests share a
// single call to the underlying agent.
func Deduplicate(agent Agent) Agent {
	return &dedupAgent{inner: agent}
}

type dedupAgent struct {
	inner Agent
	group singleflight.Group
}

func (a *dedupAgent) EnsureModuleIsInstalled(ctx context.Context, hostID uint64, module string) error {
	key := fmt.Sprintf("module/%d/%s", hostID, module)
	_, err, shared := a.group.Do(key, func() (any, error) {
		return nil, a.inner.EnsureModuleIsInstalled(ctx, hostID, module)
	})
	if !shared {
		record("ensure_module", err)
	}
	return err
}

func (a *dedupAgent) QueryFreeSpace(ctx context.Context, hostID uint64, path string) (uint64, error) {
	key := fmt.Sprintf("free/%d/%s", hostID, path)
	v, err, shared := a.group.Do(key, func() (any, error) {
		return a.inner.QueryFreeSpace(ctx, hostID, path)
	})
	if !shared {
		record("query_free_space", err)
	}
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func record(operation string, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
	}
	metrics.HostAgentRequestsTotal.WithLabelValues(operation, result).Inc()
}
