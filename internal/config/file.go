package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// overlayFile merges the allocation, scheduler and observability sections of a config file
// over values loaded from the environment. Keys absent from the file keep
// their environment value.
func overlayFile(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if v.IsSet("allocation") {
		if err := v.UnmarshalKey("allocation", &cfg.Allocation); err != nil {
			return fmt.Errorf("decode allocation section: %w", err)
		}
		cfg.Allocation.SplitPolicy = normalizeSplitPolicy(cfg.Allocation.SplitPolicy)
	}
	if v.IsSet("scheduler.years_back") {
		cfg.Scheduler.YearsBack = v.GetInt("scheduler.years_back")
	}
	if v.IsSet("scheduler.interval_seconds") {
		cfg.Scheduler.IntervalSeconds = v.GetInt("scheduler.interval_seconds")
	}
	if v.IsSet("observability") {
		if err := v.UnmarshalKey("observability", &cfg.Observability); err != nil {
			return fmt.Errorf("decode observability section: %w", err)
		}
	}
	if v.IsSet("taxonomy_file") {
		cfg.TaxonomyFile = v.GetString("taxonomy_file")
	}
	return nil
}
