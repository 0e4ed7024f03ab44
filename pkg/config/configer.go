package config

// Configer is the key/value configuration surface used throughout syncd. Keys are
// environment style names such as SYNCD_BLOB_DIR.
type Configer interface {
	LoadFromPath(path string) error
	Load() error
	GetKey(key string) string
	MustGetKey(key string) string
	GetKeyWithDefault(key, defaultValue string) string
	GetIntKey(key string) int
	MustGetIntKey(key string) int
	GetIntKeyWithDefault(key string, defaultValue int) int
	GetBoolKeyWithDefault(key string, defaultValue bool) bool
}
