package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/subosito/gotenv"
)

type Config interface {
	EnvConfig
	IdentityConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetAppURL() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	Identity
	Session
}

// New loads configuration from the process environment, after merging any .env
// files found on disk. Required identity settings are validated up front so the
// process fails before it serves anything.
func New(envFiles ...string) (Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	return Parse()
}

// Parse reads configuration from the environment only.
func Parse() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config] parse env: %w", err)
	}
	if err := c.Identity.validate(); err != nil {
		return nil, err
	}
	if err := c.Session.validate(); err != nil {
		return nil, err
	}
	if err := c.EnvVars.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadEnvFiles merges .env files into the environment without overriding variables
// that are already set. Missing files are not an error.
func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := gotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("[config] load %s: %w", f, err)
		}
	}
	return nil
}
