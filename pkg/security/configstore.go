package security

import (
	"fmt"
)

// InstanceConfigStore persists sealed instance configs
type InstanceConfigStore interface {
	PutInstanceConfig(resourceID uint64, sealed []byte) error
	GetInstanceConfig(resourceID uint64) ([]byte, error)
}

// ConfigStore seals instance configs on the way into the store and opens
// them on the way out
type ConfigStore struct {
	store  InstanceConfigStore
	sealer *ConfigSealer
}

// NewConfigStore creates a config store
func NewConfigStore(store InstanceConfigStore, sealer *ConfigSealer) *ConfigStore {
	return &ConfigStore{store: store, sealer: sealer}
}

// Save seals and stores the config of a resource
func (c *ConfigStore) Save(resourceID uint64, config map[string]any) error {
	sealed, err := c.sealer.Seal(resourceID, config)
	if err != nil {
		return fmt.Errorf("failed to seal config: %w", err)
	}
	if err := c.store.PutInstanceConfig(resourceID, sealed); err != nil {
		return fmt.Errorf("failed to store config: %w", err)
	}
	return nil
}

// Load returns the opened config of a resource
func (c *ConfigStore) Load(resourceID uint64) (map[string]any, error) {
	sealed, err := c.store.GetInstanceConfig(resourceID)
	if err != nil {
		return nil, err
	}
	config, err := c.sealer.Open(resourceID, sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open config of resource %d: %w", resourceID, err)
	}
	return config, nil
}
