package integration

import (
	"testing"
	"time"
)

// waitFor retries condition every few milliseconds until it holds or the
// timeout passes. Conditions may have side effects such as forcing a GC.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		if condition() {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return condition()
		}
	}
}
