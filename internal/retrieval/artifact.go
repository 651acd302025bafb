package retrieval

import (
	"context"
	"strings"

	intcache "github.com/blueberrycongee/ragmux/internal/cache"
	"github.com/blueberrycongee/ragmux/pkg/cache"
	ragerrors "github.com/blueberrycongee/ragmux/pkg/errors"
)

// ArtifactParams identify a generated artifact for caching purposes.
// The key is built from content parameters only; caller identity is
// deliberately absent so that every requester with the same parameters
// shares one cached artifact.
type ArtifactParams struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Course     string `json:"course"`
	Engine     string `json:"engine"`
	Model      string `json:"model"`
}

func (p ArtifactParams) fields() map[string]string {
	return map[string]string{
		"topic":      strings.ToLower(strings.TrimSpace(p.Topic)),
		"difficulty": strings.ToLower(strings.TrimSpace(p.Difficulty)),
		"course":     strings.ToLower(strings.TrimSpace(p.Course)),
		"engine":     p.Engine,
		"model":      p.Model,
	}
}

// CachedGenerate memoizes an expensive generation behind the shared cache.
// Cache failures degrade to calling produce directly; produce errors are
// never cached.
func (e *Engine) CachedGenerate(ctx context.Context, params ArtifactParams, produce func(context.Context) (string, error)) (string, cache.Status, error) {
	if strings.TrimSpace(params.Topic) == "" {
		return "", cache.StatusBypass, ragerrors.NewInvalidArgumentError("retrieval", "artifact topic must not be empty")
	}

	key := e.keys.Generate("artifact", params.fields())
	return intcache.GetOrCompute(ctx, e.cache, e.logger, key, e.config().ArtifactTTL, produce,
		func(text string) bool { return text != "" })
}

// InvalidateArtifacts drops every cached generated artifact.
func (e *Engine) InvalidateArtifacts(ctx context.Context) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	return e.cache.DeleteMatching(ctx, e.keys.NamespacePrefix("artifact"))
}
