// Package guard flips the process into test mode before any other init runs.
// Blank-import it from tests that exercise a main package.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SENTINEL_TEST_MODE") == "" {
			_ = os.Setenv("SENTINEL_TEST_MODE", "1")
		}
	})
}
