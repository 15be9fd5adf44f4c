package validation

import (
	"fmt"

	"github.com/bardlex/noso2m/internal/mining"
	"github.com/bardlex/noso2m/internal/nosohash"
)

// ValidateTarget checks a target before it is handed to workers
func ValidateTarget(t *mining.WorkTarget) error {
	if t == nil {
		return fmt.Errorf("target is required")
	}

	if len(t.PrevHash) != nosohash.HashLen {
		return fmt.Errorf("previous hash must be %d characters, got %d", nosohash.HashLen, len(t.PrevHash))
	}

	if len(t.MinDiff) != nosohash.HashLen {
		return fmt.Errorf("minimum difficulty must be %d characters, got %d", nosohash.HashLen, len(t.MinDiff))
	}

	if len(t.Address) != 30 && len(t.Address) != 31 {
		return fmt.Errorf("address must be 30 or 31 characters, got %d", len(t.Address))
	}

	if len(t.PoolPrefix) > nosohash.PrefixLen-4 {
		return fmt.Errorf("pool prefix %q leaves no room for the worker code", t.PoolPrefix)
	}

	return nil
}
