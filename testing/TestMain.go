// Package testing prepares the environment shared by the ledger test suites.
// Importing it switches the binaries into test mode and points configuration
// at in-process backends.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("SEQUENCE_BACKEND") == "" {
			_ = os.Setenv("SEQUENCE_BACKEND", "memory")
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

// Redis starts a miniredis server for the test and returns a client bound
// to it. Both are closed on cleanup.
func Redis(t stdtesting.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}
