package tutil

import (
	"os"
	"strings"
)

// IsIntegrationTest reports whether SYNCD_TEST=integration, which enables tests
// that need external services such as MySQL.
func IsIntegrationTest() bool {
	testType := os.Getenv("SYNCD_TEST")
	return strings.ToLower(testType) == "integration"
}

// EnvOrDefault is a small helper for integration tests that read connection
// details from the environment.
func EnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultValue
}
