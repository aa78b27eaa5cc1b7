package config

import (
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

type SessionConfig interface {
	GetRefreshMargin() time.Duration
	GetProviderTimeout() time.Duration
	GetTokenCachePath() string
	GetTokenCacheKey() string
}

type Session struct {
	RefreshMargin   time.Duration `env:"TOKEN_REFRESH_MARGIN" envDefault:"30s"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	TokenCachePath  string        `env:"TOKEN_CACHE_PATH"`
	TokenCacheKey   string        `env:"TOKEN_CACHE_KEY"`
}

var _ SessionConfig = Session{}

// GetRefreshMargin is how long before access token expiry the refresh fires.
func (s Session) GetRefreshMargin() time.Duration {
	return s.RefreshMargin
}

func (s Session) GetProviderTimeout() time.Duration {
	return s.ProviderTimeout
}

// GetTokenCachePath is the SQLite file used to persist tokens. Empty keeps them in memory.
func (s Session) GetTokenCachePath() string {
	return s.TokenCachePath
}

// GetTokenCacheKey is the hex encoded 32 byte key sealing cached tokens at rest.
func (s Session) GetTokenCacheKey() string {
	return s.TokenCacheKey
}

func (s Session) validate() error {
	if s.RefreshMargin <= 0 {
		return apperrors.Join(apperrors.ErrInvalidConfig, fmt.Errorf("TOKEN_REFRESH_MARGIN must be positive, got %s", s.RefreshMargin))
	}
	if s.ProviderTimeout <= 0 {
		return apperrors.Join(apperrors.ErrInvalidConfig, fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", s.ProviderTimeout))
	}
	if s.TokenCacheKey != "" {
		key, err := hex.DecodeString(s.TokenCacheKey)
		if err != nil || len(key) != 32 {
			return apperrors.Join(apperrors.ErrInvalidConfig, fmt.Errorf("TOKEN_CACHE_KEY must be 64 hex characters"))
		}
	}
	return nil
}
