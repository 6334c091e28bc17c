// Package endpoint is the built-in provider for monitored network
// endpoints. An endpoint resource owns no workload of its own: deploying
// it records how to reach a service, and its health checks and live state
// come from probing that service over HTTP or TCP.
package endpoint

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/probe"
	"github.com/cuemby/burrow/pkg/provider"
	"github.com/cuemby/burrow/pkg/schema"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// ProviderName is the name the endpoint provider registers under
	ProviderName = "endpoint"

	TypeHTTP = "http-endpoint"
	TypeTCP  = "tcp-endpoint"
)

// ConfigSource loads the instance config stored at deployment
type ConfigSource interface {
	Load(resourceID uint64) (map[string]any, error)
}

// Provider probes monitored endpoints
type Provider struct {
	configs ConfigSource
	schemas *schema.Registry
	logger  zerolog.Logger
}

var _ provider.Provider = (*Provider)(nil)

// RegisterSchemas adds the endpoint schemas to registry
func RegisterSchemas(registry *schema.Registry) error {
	if err := registry.Register(TypeHTTP, []byte(httpEndpointSchema)); err != nil {
		return err
	}
	return registry.Register(TypeTCP, []byte(tcpEndpointSchema))
}

// New creates the endpoint provider. schemas must already hold the
// endpoint schemas; they supply defaults for omitted properties.
func New(configs ConfigSource, schemas *schema.Registry) *Provider {
	return &Provider{
		configs: configs,
		schemas: schemas,
		logger:  log.WithComponent("endpoint-provider"),
	}
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) ResourceTypes() []provider.TypeDefinition {
	return []provider.TypeDefinition{
		{TypeName: TypeHTTP, SchemaName: TypeHTTP},
		{TypeName: TypeTCP, SchemaName: TypeTCP},
	}
}

// DataIntegrityCheckSchedule returns nil: endpoints hold no data
func (p *Provider) DataIntegrityCheckSchedule() *types.Schedule { return nil }

// ProvideResource stores the probe settings as the instance config
func (p *Provider) ProvideResource(ctx context.Context, properties map[string]any, dctx *provider.DeploymentContext) (*provider.DeploymentResult, error) {
	typeName, _ := properties["type"].(string)
	config, err := p.schemas.CreateDefault(typeName)
	if err != nil {
		return nil, err
	}
	for k, v := range properties {
		if k == "name" {
			continue
		}
		config[k] = v
	}

	if _, err := newProber(config); err != nil {
		return nil, err
	}

	logger := log.WithResourceID(p.logger, dctx.Reference.ID)
	logger.Info().
		Str("type", typeName).
		Str("external_id", dctx.Reference.ExternalID()).
		Msg("Endpoint registered")
	return &provider.DeploymentResult{Config: config}, nil
}

// RehostResource has nothing to move; the probe runs from the control plane
func (p *Provider) RehostResource(ctx context.Context, oldRef *types.ResourceReference, properties map[string]any, dctx *provider.DeploymentContext) error {
	logger := log.WithResourceID(p.logger, oldRef.ID)
	logger.Debug().
		Str("to_host", dctx.Reference.HostName).
		Msg("Endpoint rehosted")
	return nil
}

// CheckResource probes the endpoint. Availability only needs the port to
// accept connections; the other checks run the full probe.
func (p *Provider) CheckResource(ctx context.Context, ref *types.ResourceReference, checkType types.CheckType) error {
	config, err := p.configs.Load(ref.ID)
	if err != nil {
		return err
	}

	prober, err := newProber(config)
	if err != nil {
		return err
	}
	if checkType == types.CheckAvailability {
		if hp, ok := prober.(*probe.HTTPProbe); ok {
			prober, err = reachability(hp)
			if err != nil {
				return err
			}
		}
	}

	result := prober.Probe(ctx)
	logger := log.WithResourceID(p.logger, ref.ID)
	logger.Debug().
		Str("check", string(checkType)).
		Bool("healthy", result.Healthy).
		Dur("duration", result.Duration).
		Msg("Endpoint probed")
	return result.Err()
}

// QueryResourceState reports running when the full probe passes
func (p *Provider) QueryResourceState(ctx context.Context, ref *types.ResourceReference) (*provider.ResourceState, error) {
	config, err := p.configs.Load(ref.ID)
	if err != nil {
		return nil, err
	}
	prober, err := newProber(config)
	if err != nil {
		return nil, err
	}

	result := prober.Probe(ctx)
	if !result.Healthy {
		return &provider.ResourceState{State: types.StateDown, Context: result.Message}, nil
	}
	return &provider.ResourceState{State: types.StateRunning, Context: result.Message}, nil
}

func (p *Provider) ResourcePermissionsChanged(ctx context.Context, ref *types.ResourceReference) error {
	return nil
}

func (p *Provider) ExternalResourceIdChanged(ctx context.Context, ref *types.ResourceReference, oldExternalID string) error {
	logger := log.WithResourceID(p.logger, ref.ID)
	logger.Info().
		Str("old", oldExternalID).
		Str("new", ref.ExternalID()).
		Msg("Endpoint renamed")
	return nil
}

func newProber(config map[string]any) (probe.Prober, error) {
	timeout := time.Duration(intValue(config["timeout_seconds"], 10)) * time.Second

	switch config["type"] {
	case TypeHTTP:
		target, _ := config["url"].(string)
		if _, err := url.ParseRequestURI(target); err != nil {
			return nil, apperrors.Invalid("invalid endpoint url %q", target)
		}
		hp := probe.NewHTTPProbe(target).
			WithStatusRange(intValue(config["expect_status_min"], 200), intValue(config["expect_status_max"], 399)).
			WithTimeout(timeout)
		if method, ok := config["method"].(string); ok && method != "" {
			hp = hp.WithMethod(method)
		}
		if s, ok := config["body_contains"].(string); ok && s != "" {
			hp = hp.WithBodyContains(s)
		}
		return hp, nil

	case TypeTCP:
		address, _ := config["address"].(string)
		if _, _, err := net.SplitHostPort(address); err != nil {
			return nil, apperrors.Invalid("invalid endpoint address %q", address)
		}
		return probe.NewTCPProbe(address).WithTimeout(timeout), nil
	}
	return nil, apperrors.Invalid("unknown endpoint type %v", config["type"])
}

// reachability turns an HTTP probe into a TCP probe of the same host
func reachability(hp *probe.HTTPProbe) (probe.Prober, error) {
	u, err := url.Parse(hp.URL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", hp.URL, err)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return probe.NewTCPProbe(net.JoinHostPort(u.Hostname(), port)).WithTimeout(hp.Client.Timeout), nil
}

// intValue reads a number that may have gone through JSON
func intValue(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}
