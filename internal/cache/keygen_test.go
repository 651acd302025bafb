package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyGenerator_Deterministic(t *testing.T) {
	g := NewKeyGenerator("ragmux")

	fields := map[string]string{
		"scope": "doc-1",
		"query": "linear equations",
		"top_k": "3",
	}

	key1 := g.Generate("context", fields)
	key2 := g.Generate("context", map[string]string{
		"top_k": "3",
		"query": "linear equations",
		"scope": "doc-1",
	})

	assert.Equal(t, key1, key2, "field order must not change the key")
	assert.True(t, strings.HasPrefix(key1, "ragmux:context:"))
}

func TestKeyGenerator_DistinctInputs(t *testing.T) {
	g := NewKeyGenerator("")

	base := map[string]string{"scope": "doc-1", "query": "q", "top_k": "3"}
	key := g.Generate("context", base)

	for name, variant := range map[string]map[string]string{
		"different scope": {"scope": "doc-2", "query": "q", "top_k": "3"},
		"different query": {"scope": "doc-1", "query": "q2", "top_k": "3"},
		"different top_k": {"scope": "doc-1", "query": "q", "top_k": "5"},
	} {
		assert.NotEqual(t, key, g.Generate("context", variant), name)
	}
}

func TestKeyGenerator_NamespaceSeparation(t *testing.T) {
	g := NewKeyGenerator("ragmux")

	fields := map[string]string{"topic": "algebra"}
	assert.NotEqual(t,
		g.Generate("context", fields),
		g.Generate("artifact", fields),
	)
}

func TestKeyGenerator_FieldBoundaries(t *testing.T) {
	g := NewKeyGenerator("")

	// "ab"+"c" and "a"+"bc" must not collide through concatenation.
	k1 := g.Generate("", map[string]string{"x": "ab", "y": "c"})
	k2 := g.Generate("", map[string]string{"x": "a", "y": "bc"})
	assert.NotEqual(t, k1, k2)
}

func TestKeyGenerator_GenerateFromRaw(t *testing.T) {
	g := NewKeyGenerator("ragmux")

	k1 := g.GenerateFromRaw("context", "some content")
	k2 := g.GenerateFromRaw("context", "some content")
	k3 := g.GenerateFromRaw("context", "other content")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}
