package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
)

var configer Configer = &DotenvConfig{}

func SetConfig(c Configer) {
	configer = c
}

func GetConfig() Configer {
	return configer
}

// NewConfigForPath picks the Configer implementation from the file extension:
// yaml, yml, toml and json files go through viper, anything else is treated as
// a dotenv file.
func NewConfigForPath(path string) Configer {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml", ".json":
		return NewViperConfig(path)
	default:
		return NewDotenvConfig(path)
	}
}

// MustLoad loads the configuration at path, falling back to SYNCD_DOTENV_PATH
// when path is blank, and installs it as the package level Configer.
func MustLoad(path string) Configer {
	if path == "" {
		path = os.Getenv(DotenvPathKey)
	}

	c := NewConfigForPath(path)
	if err := c.Load(); err != nil {
		log.Fatalf("Failed loading configuration file %s: %s", path, err)
	}

	SetConfig(c)
	return c
}

func LoadFromPath(path string) error {
	return configer.LoadFromPath(path)
}

func Load() error {
	return configer.Load()
}

func GetKey(key string) string {
	return configer.GetKey(key)
}

func MustGetKey(key string) string {
	return configer.MustGetKey(key)
}

func GetKeyWithDefault(key, defaultValue string) string {
	return configer.GetKeyWithDefault(key, defaultValue)
}

func GetIntKey(key string) int {
	return configer.GetIntKey(key)
}

func MustGetIntKey(key string) int {
	return configer.MustGetIntKey(key)
}

func GetIntKeyWithDefault(key string, defaultValue int) int {
	return configer.GetIntKeyWithDefault(key, defaultValue)
}

func GetBoolKeyWithDefault(key string, defaultValue bool) bool {
	return configer.GetBoolKeyWithDefault(key, defaultValue)
}
