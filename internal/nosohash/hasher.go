package nosohash

import (
	"crypto/md5"
	"fmt"
	"strconv"
)

const (
	// PrefixLen is the length of a worker search prefix
	PrefixLen = 9
	// CounterLen is the number of zero-padded counter digits
	CounterLen = 9
	// BaseLen is the length of the base string sent to peers
	BaseLen = PrefixLen + CounterLen
	// MaxCounter is the first counter that no longer fits CounterLen digits
	MaxCounter = 1_000_000_000

	gridWidth = 128
	gridRows  = 129
	filler    = "%)+/5;=CGIOSYaegk"
)

// charTable folds any sum of up to four printable bytes back onto the
// printable range 32..126. Sums below 32 never occur.
var charTable = func() [505]byte {
	var t [505]byte
	for i := 32; i < len(t); i++ {
		t[i] = byte(32 + (i-32)%95)
	}
	return t
}()

// Hasher computes Noso hashes for one (prefix, address) pair. It keeps its
// grid between calls, so it is not safe for concurrent use; give every
// worker its own.
type Hasher struct {
	base [BaseLen]byte
	grid [gridRows][gridWidth]byte
	hash [HashLen]byte
}

// NewHasher seeds the first grid row from prefix, counter zero, address and
// the filler alphabet.
func NewHasher(prefix, address string) (*Hasher, error) {
	if len(prefix) != PrefixLen {
		return nil, fmt.Errorf("prefix must be %d characters, got %d", PrefixLen, len(prefix))
	}
	if len(address) != 30 && len(address) != 31 {
		return nil, fmt.Errorf("address must be 30 or 31 characters, got %d", len(address))
	}

	h := &Hasher{}
	copy(h.base[:], prefix)
	copy(h.base[PrefixLen:], "000000000")

	row := h.grid[0][:0]
	row = append(row, h.base[:]...)
	row = append(row, address...)
	for len(row) < gridWidth {
		n := min(len(filler), gridWidth-len(row))
		row = append(row, filler[:n]...)
	}

	for _, c := range h.grid[0] {
		if c < 33 || c > 126 {
			return nil, fmt.Errorf("non-printable byte %d in hash seed", c)
		}
	}
	return h, nil
}

// SetCounter splices a counter into the base and the seed row and returns
// the 18-character base.
func (h *Hasher) SetCounter(counter uint32) (string, error) {
	if counter >= MaxCounter {
		return "", fmt.Errorf("counter %d exceeds %d digits", counter, CounterLen)
	}

	digits := h.base[PrefixLen:]
	for i := range digits {
		digits[i] = '0'
	}
	s := strconv.FormatUint(uint64(counter), 10)
	copy(digits[CounterLen-len(s):], s)
	copy(h.grid[0][PrefixLen:BaseLen], digits)

	return string(h.base[:]), nil
}

// Base returns the current 18-character base
func (h *Hasher) Base() string {
	return string(h.base[:])
}

// Hash runs the grid transform and the MD5 avalanche over the current seed
func (h *Hasher) Hash() string {
	for row := 1; row < gridRows; row++ {
		prev := &h.grid[row-1]
		cur := &h.grid[row]
		for col := 0; col < gridWidth-1; col++ {
			cur[col] = charTable[int(prev[col])+int(prev[col+1])]
		}
		cur[gridWidth-1] = charTable[int(prev[gridWidth-1])+int(prev[0])]
	}

	last := &h.grid[gridRows-1]
	var stage [HashLen]byte
	for i := range HashLen {
		sum := int(last[4*i]) + int(last[4*i+1]) + int(last[4*i+2]) + int(last[4*i+3])
		stage[i] = hexDigits[charTable[sum]%16]
	}

	digest := md5.Sum(stage[:])
	for i, b := range digest {
		h.hash[2*i] = hexDigits[b>>4]
		h.hash[2*i+1] = hexDigits[b&0x0F]
	}
	return string(h.hash[:])
}

// Diff scores the last computed hash against target
func (h *Hasher) Diff(target string) string {
	return NibbleDistance(string(h.hash[:]), target)
}
