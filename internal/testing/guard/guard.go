// Package guard holds helpers shared by tests that touch real infrastructure.
package guard

import (
	"os"
	"sync"
	"testing"
)

const skipDockerEnv = "ESTATEHUB_SKIP_DOCKER"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ESTATEHUB_TEST_MODE") == "" {
			_ = os.Setenv("ESTATEHUB_TEST_MODE", "1")
		}
	})
}

// RequireDocker skips t under -short or when ESTATEHUB_SKIP_DOCKER=1.
func RequireDocker(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	if os.Getenv(skipDockerEnv) == "1" {
		t.Skip("integration test skipped: " + skipDockerEnv + "=1")
	}
}
