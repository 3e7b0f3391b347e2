package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var ErrStoreNotConfigured = errors.New("core: store not configured")

type Service struct {
	config            Config
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
	bundles           BundleCatalog
	claimSettleWait   time.Duration
	claimSettlePoll   time.Duration
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	TokenStore        TokenStore
	ProfileStore      ProfileStore
	ResourceStore     ResourceStore
	GrantStore        GrantStore
	AlertSink         AlertSink
	PurgeScheduler    PurgeScheduler
	TokenGenerator    TokenGenerator
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil && builder.logger == nil {
		if named := provider.GetLogger(defaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.alertSink == nil {
		builder.alertSink = NopAlertSink{}
	}
	if builder.tokenGenerator == nil {
		builder.tokenGenerator = RandomTokenGenerator{}
	}
	if builder.clock == nil {
		builder.clock = systemClock
	}
	if builder.claimSettleWait < 0 {
		builder.claimSettleWait = 0
	}
	if builder.claimSettlePoll <= 0 {
		builder.claimSettlePoll = defaultClaimSettlePoll
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := builder.resolveStores(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	bundles, err := NewBundleCatalog(finalConfig.Entitlements.Bundles)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		tokenStore:        builder.tokenStore,
		profileStore:      builder.profileStore,
		resourceStore:     builder.resourceStore,
		grantStore:        builder.grantStore,
		alertSink:         builder.alertSink,
		purgeScheduler:    builder.purgeScheduler,
		tokenGenerator:    builder.tokenGenerator,
		clock:             builder.clock,
		bundles:           bundles,
		claimSettleWait:   builder.claimSettleWait,
		claimSettlePoll:   builder.claimSettlePoll,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

// resolveStores fills stores not injected directly from the repository
// factory, which is either a RepositoryStoreFactory or a StoreProvider.
func (b *serviceBuilder) resolveStores() error {
	if b.repositoryFactory == nil {
		return nil
	}
	if b.tokenStore != nil && b.profileStore != nil && b.resourceStore != nil && b.grantStore != nil {
		return nil
	}
	var provider StoreProvider
	switch factory := b.repositoryFactory.(type) {
	case RepositoryStoreFactory:
		built, err := factory.BuildStores(b.persistenceClient)
		if err != nil {
			return fmt.Errorf("core: build stores: %w", err)
		}
		provider = built
	case StoreProvider:
		provider = factory
	default:
		return fmt.Errorf("core: unsupported repository factory %T", b.repositoryFactory)
	}
	if provider == nil {
		return nil
	}
	if b.tokenStore == nil {
		b.tokenStore = provider.TokenStore()
	}
	if b.profileStore == nil {
		b.profileStore = provider.ProfileStore()
	}
	if b.resourceStore == nil {
		b.resourceStore = provider.ResourceStore()
	}
	if b.grantStore == nil {
		b.grantStore = provider.GrantStore()
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		TokenStore:        s.tokenStore,
		ProfileStore:      s.profileStore,
		ResourceStore:     s.resourceStore,
		GrantStore:        s.grantStore,
		AlertSink:         s.alertSink,
		PurgeScheduler:    s.purgeScheduler,
		TokenGenerator:    s.tokenGenerator,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return systemClock()
	}
	return s.clock().UTC()
}

func (s *Service) requireStores(names ...string) error {
	if s == nil {
		return ErrStoreNotConfigured
	}
	for _, name := range names {
		var missing bool
		switch name {
		case "token":
			missing = s.tokenStore == nil
		case "profile":
			missing = s.profileStore == nil
		case "resource":
			missing = s.resourceStore == nil
		case "grant":
			missing = s.grantStore == nil
		}
		if missing {
			return fmt.Errorf("%w: %s", ErrStoreNotConfigured, name)
		}
	}
	return nil
}
