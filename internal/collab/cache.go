package collab

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"
)

// Cache stores generation payloads. Get reports false on a miss.
type Cache interface {
	Get(key string, dest any) (bool, error)
	Set(key string, value any, ttl time.Duration) error
}

type cachedGeneration struct {
	Raw    string `json:"raw"`
	Source string `json:"source"`
}

// CachedGenerator remembers first-attempt generations per instruction text.
// Regenerations carry feedback and always reach the backend.
type CachedGenerator struct {
	next   Generator
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedGenerator(next Generator, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedGenerator {
	return &CachedGenerator{next: next, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.FunctionID))
	h.Write([]byte{0})
	h.Write([]byte(req.Instructions))
	if req.WantCode {
		h.Write([]byte{0, 'c'})
	}
	return "nature:gen:" + hex.EncodeToString(h.Sum(nil))
}

func (slf *CachedGenerator) Generate(ctx context.Context, req Request) (*Generation, error) {
	cacheable := req.Attempt == 0 && req.Feedback == ""
	key := cacheKey(req)

	if cacheable {
		var hit cachedGeneration
		found, err := slf.cache.Get(key, &hit)
		if err != nil {
			slf.logger.Warn().Err(err).Str("function", req.FunctionID).Msg("Generation cache read failed")
		}
		if found {
			gen, err := Interpret(req.FunctionID, hit.Raw)
			if err == nil {
				gen.Source = SourceCache
				slf.logger.Debug().Str("function", req.FunctionID).Str("origin", hit.Source).Msg("Generation cache hit")
				return gen, nil
			}
			slf.logger.Warn().Err(err).Str("function", req.FunctionID).Msg("Ignoring unreadable cached generation")
		}
	}

	gen, err := slf.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if cacheable && gen.Source != SourceStub && gen.Raw != "" {
		if err := slf.cache.Set(key, cachedGeneration{Raw: gen.Raw, Source: gen.Source}, slf.ttl); err != nil {
			slf.logger.Warn().Err(err).Str("function", req.FunctionID).Msg("Generation cache write failed")
		}
	}
	return gen, nil
}
