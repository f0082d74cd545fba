package config

import (
	"sync/atomic"

	"github.com/tugasin/tugasin-blog/types"
)

// ConfigurationManager owns the loaded configuration. Reload swaps it atomically; readers that already
// hold a pointer keep a consistent snapshot.
type ConfigurationManager struct {
	config     atomic.Pointer[types.ServiceConfig]
	configPath string
	loader     *Loader
}

func NewConfigurationManager(configPath string, opts ...LoaderOption) (*ConfigurationManager, error) {
	cm := &ConfigurationManager{
		configPath: configPath,
		loader:     NewLoader(opts...),
	}

	if err := cm.Load(); err != nil {
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return cm, nil
}

// NewStaticManager wraps an already built configuration.
func NewStaticManager(config *types.ServiceConfig) *ConfigurationManager {
	cm := &ConfigurationManager{}
	cm.config.Store(config)
	return cm
}

func (cm *ConfigurationManager) Load() error {
	config, err := cm.loader.LoadFromFile(cm.configPath)
	if err != nil {
		return err
	}

	cm.config.Store(config)
	return nil
}

func (cm *ConfigurationManager) GetConfig() *types.ServiceConfig {
	return cm.config.Load()
}
