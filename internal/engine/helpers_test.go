package engine_test

import (
	"testing"
	"time"
)

// waitUntil polls cond until it reports true or a short deadline elapses,
// used to synchronize with a DebugRun goroutine's event emissions without
// sleeping a fixed duration.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
