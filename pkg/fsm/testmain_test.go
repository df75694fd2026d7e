package fsm

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks for leaked goroutines (stray timers, worker loops that
// never exited) once every test in this package has run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
