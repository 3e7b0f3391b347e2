package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	tokenStore        TokenStore
	profileStore      ProfileStore
	resourceStore     ResourceStore
	grantStore        GrantStore
	alertSink         AlertSink
	purgeScheduler    PurgeScheduler
	tokenGenerator    TokenGenerator
	clock             Clock
	claimSettleWait   time.Duration
	claimSettlePoll   time.Duration
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithTokenStore(store TokenStore) Option {
	return func(b *serviceBuilder) {
		b.tokenStore = store
	}
}

func WithProfileStore(store ProfileStore) Option {
	return func(b *serviceBuilder) {
		b.profileStore = store
	}
}

func WithResourceStore(store ResourceStore) Option {
	return func(b *serviceBuilder) {
		b.resourceStore = store
	}
}

func WithGrantStore(store GrantStore) Option {
	return func(b *serviceBuilder) {
		b.grantStore = store
	}
}

func WithAlertSink(sink AlertSink) Option {
	return func(b *serviceBuilder) {
		b.alertSink = sink
	}
}

func WithPurgeScheduler(scheduler PurgeScheduler) Option {
	return func(b *serviceBuilder) {
		b.purgeScheduler = scheduler
	}
}

func WithTokenGenerator(generator TokenGenerator) Option {
	return func(b *serviceBuilder) {
		b.tokenGenerator = generator
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

// WithClaimSettleWait bounds how long a revisit by the winning identity
// re-reads the token, every poll, while the winning request finishes the
// transfer. A zero wait disables the re-read.
func WithClaimSettleWait(wait time.Duration, poll time.Duration) Option {
	return func(b *serviceBuilder) {
		b.claimSettleWait = wait
		b.claimSettlePoll = poll
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve(defaultServiceName, nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		alertSink:       NopAlertSink{},
		tokenGenerator:  RandomTokenGenerator{},
		clock:           systemClock,
		claimSettleWait: defaultClaimSettleWait,
		claimSettlePoll: defaultClaimSettlePoll,
	}
}

func systemClock() time.Time {
	return time.Now().UTC()
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.Tokens.DefaultTTL > 0 {
		layer["tokens"] = map[string]any{
			"default_ttl": cfg.Tokens.DefaultTTL,
		}
	}

	entitlements := map[string]any{}
	if includeZero || len(cfg.Entitlements.Bundles) > 0 {
		bundles := make([]any, 0, len(cfg.Entitlements.Bundles))
		for _, bundle := range cfg.Entitlements.Bundles {
			bundles = append(bundles, map[string]any{
				"ref":    bundle.Ref,
				"covers": append([]string(nil), bundle.Covers...),
			})
		}
		entitlements["bundles"] = bundles
	}
	if includeZero || cfg.Entitlements.GrantCacheTTL > 0 {
		entitlements["grant_cache_ttl"] = cfg.Entitlements.GrantCacheTTL
	}
	if len(entitlements) > 0 {
		layer["entitlements"] = entitlements
	}
	return layer
}
