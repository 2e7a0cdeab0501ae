package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ESTATEHUB_TEST_MODE", "1")
		if os.Getenv("AUTH_JWT_SECRET") == "" {
			_ = os.Setenv("AUTH_JWT_SECRET", "test-signing-key-32-bytes-long!!")
		}
		if os.Getenv("ACCESS_STORE") == "" {
			_ = os.Setenv("ACCESS_STORE", "memory")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
