package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "ESTATEHUB_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the process must avoid external side effects:
// no Postgres, no Redis, no migrations, no background listeners.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// EffectiveStore returns the access store backend to use. Test mode always
// selects memory.
func EffectiveStore(cfg *Config) string {
	if InTestMode() || cfg.UsesMemoryStore() {
		return StoreMemory
	}
	return StorePostgres
}
