// Package config loads the invitesd YAML configuration file.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-invites/adapters/gojob"
	"github.com/goliatone/go-invites/core"
	sqlstore "github.com/goliatone/go-invites/store/sql"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHTTPAddr       = ":8080"
	DefaultIdentityHeader = "X-Authenticated-Identity"
	DefaultMetricsNS      = "app"
)

// HTTPConfig configures the API listener. AdminHeader is empty by default,
// which leaves the admin routes closed. Set it only when the auth proxy in
// front of invitesd strips that header from client requests.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	IdentityHeader  string        `yaml:"identity_header"`
	AdminHeader     string        `yaml:"admin_header"`
	ClaimRedirect   string        `yaml:"claim_redirect"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

type PurgeConfig struct {
	QueueCapacity int           `yaml:"queue_capacity"`
	MaxAttempts   int           `yaml:"max_attempts"`
	MaxDelay      time.Duration `yaml:"max_delay"`
}

func (c PurgeConfig) RetryPolicy() gojob.RetryPolicy {
	return gojob.RetryPolicy{MaxAttempts: c.MaxAttempts, MaxDelay: c.MaxDelay, DeadLetterOnMax: true}
}

// File mirrors invitesd.yaml. The service section is kept raw and handed to
// core through LoadRaw so cfgx applies defaults and validation.
type File struct {
	Service  map[string]any             `yaml:"service"`
	Database sqlstore.PersistenceConfig `yaml:"database"`
	HTTP     HTTPConfig                 `yaml:"http"`
	NATS     NATSConfig                 `yaml:"nats"`
	Metrics  MetricsConfig              `yaml:"metrics"`
	Purge    PurgeConfig                `yaml:"purge"`
}

func Default() File {
	return File{
		Service: map[string]any{},
		Database: sqlstore.PersistenceConfig{
			Driver: sqlstore.DriverSQLite,
			DSN:    "file:invites.db?cache=shared&_fk=1",
		},
		HTTP: HTTPConfig{
			Addr:            DefaultHTTPAddr,
			IdentityHeader:  DefaultIdentityHeader,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Namespace: DefaultMetricsNS},
		Purge:   PurgeConfig{MaxAttempts: 5, MaxDelay: time.Minute},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (File, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (File, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return File{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if cfg.Service == nil {
		cfg.Service = map[string]any{}
	}
	if err := cfg.Validate(); err != nil {
		return File{}, err
	}
	return cfg, nil
}

func (f File) Validate() error {
	if strings.TrimSpace(f.Database.Driver) == "" {
		return fmt.Errorf("config: database.driver is required")
	}
	if _, err := sqlstore.MigrationDialect(f.Database.Driver); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strings.TrimSpace(f.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(f.HTTP.Addr) == "" {
		return fmt.Errorf("config: http.addr is required")
	}
	if f.Purge.MaxAttempts < 0 || f.Purge.MaxDelay < 0 {
		return fmt.Errorf("config: purge retry bounds must not be negative")
	}
	return nil
}

// LoadRaw implements core.RawConfigLoader over the service section.
func (f File) LoadRaw(context.Context) (map[string]any, error) {
	return normalizeDurations(f.Service)
}

// durationKeys lists the service keys decoded as time.Duration. YAML gives
// them as strings such as "168h", which cfgx would not convert.
var durationKeys = map[string]struct{}{
	"default_ttl":     {},
	"grant_cache_ttl": {},
}

func normalizeDurations(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for key, value := range in {
		switch typed := value.(type) {
		case map[string]any:
			nested, err := normalizeDurations(typed)
			if err != nil {
				return nil, err
			}
			out[key] = nested
		case string:
			if _, ok := durationKeys[key]; !ok {
				out[key] = typed
				continue
			}
			parsed, err := time.ParseDuration(strings.TrimSpace(typed))
			if err != nil {
				return nil, fmt.Errorf("config: service.%s: %w", key, err)
			}
			out[key] = parsed
		default:
			out[key] = value
		}
	}
	return out, nil
}

var _ core.RawConfigLoader = File{}
