package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load populates config, a pointer to a struct, from the file at path.
// Precedence, lowest to highest: whatever values the struct already
// holds, the file, then environment variables (nested keys joined with
// underscores, so redis.session.prefix reads REDIS_SESSION_PREFIX).
func Load(path string, config any) error {
	seed := make(map[string]any)
	if err := mapstructure.Decode(config, &seed); err != nil {
		return fmt.Errorf("config: decode struct defaults: %v", err)
	}

	v := viper.New()
	if err := v.MergeConfigMap(seed); err != nil {
		return fmt.Errorf("config: seed defaults: %v", err)
	}

	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %v", path, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("config: unmarshal: %v", err)
	}

	return nil
}
