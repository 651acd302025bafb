package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// KeyGenerator builds deterministic cache keys using SHA-256 hashing.
// Identical logical inputs always produce the identical key; cache
// correctness depends on this determinism, not on any session state.
type KeyGenerator struct {
	// Prefix is prepended to all generated keys.
	Prefix string
}

// NewKeyGenerator creates a new KeyGenerator with an optional prefix.
func NewKeyGenerator(prefix string) *KeyGenerator {
	return &KeyGenerator{Prefix: prefix}
}

// Generate creates a key of the form [prefix:]namespace:sha256(fields).
// Fields are sorted by name before hashing so that map iteration order and
// call-site argument order can never change the key.
func (g *KeyGenerator) Generate(namespace string, fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteString("|")
		}
		fmt.Fprintf(&sb, "%s:%s", name, fields[name])
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return g.assemble(namespace, hex.EncodeToString(hash[:]))
}

// GenerateFromRaw creates a key from raw string content.
func (g *KeyGenerator) GenerateFromRaw(namespace, content string) string {
	hash := sha256.Sum256([]byte(content))
	return g.assemble(namespace, hex.EncodeToString(hash[:]))
}

// NamespacePrefix returns the literal prefix shared by every key generated
// under the namespace, suitable for prefix-based invalidation.
func (g *KeyGenerator) NamespacePrefix(namespace string) string {
	return g.assemble(namespace, "")
}

func (g *KeyGenerator) assemble(namespace, hashHex string) string {
	var key strings.Builder
	if g.Prefix != "" {
		key.WriteString(g.Prefix)
		key.WriteString(":")
	}
	if namespace != "" {
		key.WriteString(namespace)
		key.WriteString(":")
	}
	key.WriteString(hashHex)
	return key.String()
}
