// Package validation checks solutions and targets before they leave or enter
// the miner. A solution is re-hashed from its base so a corrupted candidate is
// never sent to a peer.
package validation

import (
	"fmt"
	"strconv"

	"github.com/bardlex/noso2m/internal/mining"
	"github.com/bardlex/noso2m/internal/nosohash"
)

// SolutionValidator validates solutions against the target they were mined for
type SolutionValidator struct {
	verifyHash bool
}

// NewSolutionValidator creates a validator. With verifyHash set every
// solution is recomputed from its base.
func NewSolutionValidator(verifyHash bool) *SolutionValidator {
	return &SolutionValidator{verifyHash: verifyHash}
}

// ValidateSolution performs the full check of a solution
func (v *SolutionValidator) ValidateSolution(sol *mining.Solution, target *mining.WorkTarget, mode mining.Mode) error {
	if err := v.validateBasicFields(sol, mode); err != nil {
		return fmt.Errorf("basic validation failed: %w", err)
	}

	if err := v.validateBlock(sol, target); err != nil {
		return fmt.Errorf("block validation failed: %w", err)
	}

	if v.verifyHash {
		if err := v.validateProofOfWork(sol, target, mode); err != nil {
			return fmt.Errorf("proof of work validation failed: %w", err)
		}
	}

	return nil
}

// validateBasicFields checks field shapes
func (v *SolutionValidator) validateBasicFields(sol *mining.Solution, mode mining.Mode) error {
	if sol == nil {
		return fmt.Errorf("solution is required")
	}

	if len(sol.Base) != nosohash.BaseLen {
		return fmt.Errorf("base must be %d characters, got %d", nosohash.BaseLen, len(sol.Base))
	}

	for i := nosohash.PrefixLen; i < nosohash.BaseLen; i++ {
		if sol.Base[i] < '0' || sol.Base[i] > '9' {
			return fmt.Errorf("base counter is not decimal")
		}
	}

	if !nosohash.IsHex32(sol.Hash) {
		return fmt.Errorf("hash is not 32 hex characters")
	}

	switch mode {
	case mining.ModeSolo:
		if !nosohash.IsHex32(sol.Diff) {
			return fmt.Errorf("solo difficulty is not 32 hex characters")
		}
	case mining.ModePool:
		if sol.Diff != "" {
			return fmt.Errorf("pool solutions carry no difficulty")
		}
	}

	return nil
}

// validateBlock checks that the solution belongs to the block being mined
func (v *SolutionValidator) validateBlock(sol *mining.Solution, target *mining.WorkTarget) error {
	if target == nil {
		return fmt.Errorf("target not found")
	}

	if sol.Block != target.BlockNumber+1 {
		return fmt.Errorf("solution block %d does not follow target block %d", sol.Block, target.BlockNumber)
	}

	return nil
}

// validateProofOfWork recomputes the hash and, in solo mode, its difficulty
func (v *SolutionValidator) validateProofOfWork(sol *mining.Solution, target *mining.WorkTarget, mode mining.Mode) error {
	hasher, err := nosohash.NewHasher(sol.Base[:nosohash.PrefixLen], target.Address)
	if err != nil {
		return err
	}

	counter, err := strconv.ParseUint(sol.Base[nosohash.PrefixLen:], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid counter: %w", err)
	}
	if _, err := hasher.SetCounter(uint32(counter)); err != nil {
		return err
	}

	hash := hasher.Hash()
	if hash != sol.Hash {
		return fmt.Errorf("hash mismatch: base hashes to %s", hash)
	}

	if mode == mining.ModeSolo {
		if diff := hasher.Diff(target.PrevHash); diff != sol.Diff {
			return fmt.Errorf("difficulty mismatch: hash scores %s", diff)
		}
	}

	return nil
}
