package config

import (
	"strconv"

	"github.com/apex/log"
	"github.com/spf13/viper"
)

// ViperConfig reads yaml, toml or json configuration files through viper. Keys
// that are not in the file fall through to the environment.
type ViperConfig struct {
	v    *viper.Viper
	path string
}

func NewViperConfig(path string) *ViperConfig {
	v := viper.New()
	v.AutomaticEnv()
	return &ViperConfig{v: v, path: path}
}

func (c *ViperConfig) LoadFromPath(path string) error {
	c.path = path
	return c.Load()
}

func (c *ViperConfig) Load() error {
	if c.path == "" {
		return nil
	}

	c.v.SetConfigFile(c.path)
	return c.v.ReadInConfig()
}

func (c *ViperConfig) GetKey(key string) string {
	return c.v.GetString(key)
}

func (c *ViperConfig) MustGetKey(key string) string {
	val := c.GetKey(key)
	if val == "" {
		log.Fatalf("No such required config key: '%s'", key)
	}

	return val
}

func (c *ViperConfig) GetKeyWithDefault(key, defaultValue string) string {
	val := c.GetKey(key)
	if val == "" {
		return defaultValue
	}

	return val
}

func (c *ViperConfig) GetIntKey(key string) int {
	return c.GetIntKeyWithDefault(key, 0)
}

func (c *ViperConfig) MustGetIntKey(key string) int {
	intVal, err := strconv.Atoi(c.GetKey(key))
	if err != nil {
		log.Fatalf("Required config key either doesn't exist or isn't an int: '%s': %s", key, err)
	}

	return intVal
}

func (c *ViperConfig) GetIntKeyWithDefault(key string, defaultValue int) int {
	intVal, err := strconv.Atoi(c.GetKey(key))
	if err != nil {
		return defaultValue
	}

	return intVal
}

func (c *ViperConfig) GetBoolKeyWithDefault(key string, defaultValue bool) bool {
	return parseBoolWithDefault(c.GetKey(key), defaultValue)
}
