package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultTokenTTL      = 7 * 24 * time.Hour
	defaultGrantCacheTTL = 5 * time.Second
	fullAccessOfferRef   = "offer:full-access"
	coursePassOfferRef   = "offer:course-pass"
	defaultServiceName   = "invites"
)

type TokenConfig struct {
	DefaultTTL time.Duration `koanf:"default_ttl" mapstructure:"default_ttl"`
}

type BundleConfig struct {
	Ref    string   `koanf:"ref" mapstructure:"ref"`
	Covers []string `koanf:"covers" mapstructure:"covers"`
}

type EntitlementConfig struct {
	Bundles       []BundleConfig `koanf:"bundles" mapstructure:"bundles"`
	GrantCacheTTL time.Duration  `koanf:"grant_cache_ttl" mapstructure:"grant_cache_ttl"`
}

type Config struct {
	ServiceName  string            `koanf:"service_name" mapstructure:"service_name"`
	Tokens       TokenConfig       `koanf:"tokens" mapstructure:"tokens"`
	Entitlements EntitlementConfig `koanf:"entitlements" mapstructure:"entitlements"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		Tokens: TokenConfig{
			DefaultTTL: defaultTokenTTL,
		},
		Entitlements: EntitlementConfig{
			Bundles:       DefaultBundles(),
			GrantCacheTTL: defaultGrantCacheTTL,
		},
	}
}

// DefaultBundles declares the offers sold today: full access covers every
// masterclass and the course pass covers every standalone chapter.
func DefaultBundles() []BundleConfig {
	return []BundleConfig{
		{Ref: fullAccessOfferRef, Covers: []string{"masterclass:*"}},
		{Ref: coursePassOfferRef, Covers: []string{"chapter:*"}},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Tokens.DefaultTTL < 0 {
		return fmt.Errorf("core: tokens.default_ttl must not be negative")
	}
	if c.Entitlements.GrantCacheTTL < 0 {
		return fmt.Errorf("core: entitlements.grant_cache_ttl must not be negative")
	}
	for _, bundle := range c.Entitlements.Bundles {
		if strings.TrimSpace(bundle.Ref) == "" {
			return fmt.Errorf("core: entitlements.bundles ref is required")
		}
		if len(bundle.Covers) == 0 {
			return fmt.Errorf("core: entitlements.bundles %q covers is required", bundle.Ref)
		}
	}
	return nil
}
