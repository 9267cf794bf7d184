// Package testutil provides helpers shared by integration tests.
package testutil

import (
	"os"
	"testing"
)

// SkipIfShort skips the test if running in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// RequireIntegration skips the test unless integration tests are enabled.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("INTEGRATION_TESTS") == "" && os.Getenv("CI") != "" {
		t.Skip("skipping integration test (set INTEGRATION_TESTS=1 to run)")
	}
}

// RequireRedis returns the Redis URL for integration tests, skipping the
// test when none is configured.
func RequireRedis(t *testing.T) string {
	t.Helper()
	RequireIntegration(t)

	url := os.Getenv("HEALER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("skipping Redis integration test (set HEALER_TEST_REDIS_URL)")
	}
	return url
}
