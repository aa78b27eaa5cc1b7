package main

import (
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/token"
	"github.com/jrsteele09/go-auth-session/token/sqlite"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// openTokenCache returns the configured token cache. Without TOKEN_CACHE_PATH the
// cache lives in memory and sessions end with the process. The returned store
// is nil for the in-memory cache.
func openTokenCache(c config.SessionConfig) (token.Cache, *sqlite.Store, error) {
	if c.GetTokenCachePath() == "" {
		log.Info().Msg("token cache: in memory")
		return token.NewInMemoryCache(), nil, nil
	}

	sealer, err := newSealer(c)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.Open(c.GetTokenCachePath(), sealer)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[openTokenCache] sqlite.Open")
	}
	log.Info().Str("path", c.GetTokenCachePath()).Msg("token cache: sqlite")
	return store, store, nil
}

func newSealer(c config.SessionConfig) (*token.Sealer, error) {
	if c.GetTokenCacheKey() == "" {
		log.Warn().Msg("TOKEN_CACHE_KEY not set, cached tokens will not survive a restart")
		return token.NewEphemeralSealer()
	}
	sealer, err := token.NewSealerFromHex(c.GetTokenCacheKey())
	if err != nil {
		return nil, errors.Wrap(err, "[newSealer] TOKEN_CACHE_KEY")
	}
	return sealer, nil
}
