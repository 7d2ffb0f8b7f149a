package config

import "fmt"

// ValidateConfig checks that every section converts into valid runtime
// parameters.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	params, err := cfg.Dominator.Params()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("dominator: %w", err)
	}
	if err := cfg.Rewards.Config().Validate(); err != nil {
		return fmt.Errorf("rewards: %w", err)
	}
	return nil
}
