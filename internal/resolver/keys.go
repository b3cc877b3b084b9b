package resolver

import (
	"math/big"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/agitter/manubot/internal/config"
)

// ShortKeyLength is the initial length of short citation keys.
const ShortKeyLength = 8

// keyGenerator hands out citation keys. It is fed identifiers in first-seen
// order, so the same input list always yields the same keys.
type keyGenerator struct {
	style string
	used  map[string]bool
	n     int
}

func newKeyGenerator(style string) *keyGenerator {
	return &keyGenerator{style: style, used: make(map[string]bool)}
}

func (g *keyGenerator) next(standardID string) string {
	g.n++
	if g.style == config.KeyStyleOrdinal {
		key := strconv.Itoa(g.n)
		g.used[key] = true
		return key
	}

	full := ShortKey(standardID, 0)
	for length := ShortKeyLength; length <= len(full); length++ {
		if key := full[:length]; !g.used[key] {
			g.used[key] = true
			return key
		}
	}
	// Every prefix collided; fall back to the full digest with a counter.
	key := full + "-" + strconv.Itoa(g.n)
	g.used[key] = true
	return key
}

// ShortKey returns the base62 encoding of the BLAKE3 digest of standardID,
// truncated to length characters. A length of 0 returns the whole encoding.
func ShortKey(standardID string, length int) string {
	sum := blake3.Sum256([]byte(standardID))
	encoded := new(big.Int).SetBytes(sum[:]).Text(62)
	if length > 0 && length < len(encoded) {
		return encoded[:length]
	}
	return encoded
}
