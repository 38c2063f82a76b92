package ledger

import (
	"testing"

	"github.com/roach88/guardian/internal/guard"
)

// eachBackend runs fn once per guard backend as a subtest.
func eachBackend(t *testing.T, fn func(t *testing.T, backend guard.Backend)) {
	t.Helper()
	for _, b := range guard.Backends {
		t.Run(string(b), func(t *testing.T) {
			fn(t, b)
		})
	}
}
