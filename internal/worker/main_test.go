package worker

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that no worker goroutine outlives its process: every
// read loop, stderr drain and wait goroutine must exit once the process or
// the in-memory pipes backing it are torn down.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("testing.(*T).Run"),
	)
}
