// Package nosohash implements the Noso proof-of-work hash and the hex-nibble
// difficulty representation the network scores it with.
package nosohash

import "strings"

const (
	// HashLen is the length of every hash, target and difficulty string
	HashLen = 32
	// MaxDiff is the weakest possible difficulty
	MaxDiff = "FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF"
)

const hexDigits = "0123456789ABCDEF"

// hashable is the prefix alphabet. Only the first prefixRadix characters are
// ever indexed; the trailing '~' is never produced.
const (
	hashable    = "!\"#$%&')*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"
	prefixRadix = 92
)

// MaxPrefixNumber is the largest value EncodePrefix accepts
const MaxPrefixNumber = prefixRadix*prefixRadix - 1

// nibble maps an uppercase hex character to its value. Anything else is 0,
// including lowercase, which peers never send.
func nibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return 0
	}
}

// LeadingZeroNibbles counts the leading '0' characters of a difficulty
func LeadingZeroNibbles(diff string) int {
	n := 0
	for n < len(diff) && diff[n] == '0' {
		n++
	}
	return n
}

// NibbleDistance scores hash against target position by position:
// hex(|hash[i] - target[i]|). Both inputs must be HashLen long.
func NibbleDistance(hash, target string) string {
	var out [HashLen]byte
	for i := range HashLen {
		d := nibble(hash[i]) - nibble(target[i])
		if d < 0 {
			d = -d
		}
		out[i] = hexDigits[d]
	}
	return string(out[:])
}

// Better reports whether difficulty a beats b. The network compares the
// strings byte by byte and so do we.
func Better(a, b string) bool {
	return a < b
}

// IsHex32 reports whether s is exactly HashLen uppercase hex characters
func IsHex32(s string) bool {
	if len(s) != HashLen {
		return false
	}
	for i := range len(s) {
		if !strings.ContainsRune(hexDigits, rune(s[i])) {
			return false
		}
	}
	return true
}

// EncodePrefix maps 0..MaxPrefixNumber onto two characters of the prefix
// alphabet. Distinct inputs give distinct outputs.
func EncodePrefix(num int) string {
	return string([]byte{hashable[num/prefixRadix], hashable[num%prefixRadix]})
}

// WorkerPrefix builds the 9-character search prefix for one worker thread:
// the pool prefix, then the encoded miner id and thread id, padded with '!'.
func WorkerPrefix(poolPrefix string, minerID, threadID int) string {
	p := poolPrefix + EncodePrefix(minerID) + EncodePrefix(threadID)
	if len(p) >= PrefixLen {
		return p[:PrefixLen]
	}
	return p + strings.Repeat("!", PrefixLen-len(p))
}
