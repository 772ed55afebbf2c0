// Package guard flips RENT_TEST_MODE on import so binaries under test skip
// dialing Postgres, Redis and Kafka.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("RENT_TEST_MODE") == "" {
			_ = os.Setenv("RENT_TEST_MODE", "1")
		}
	})
}
