package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash returns the deduplication digest of content. Case and
// surrounding whitespace are ignored, so "Hello " and "hello" collide.
func ContentHash(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
