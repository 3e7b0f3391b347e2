package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-command"
	invites "github.com/goliatone/go-invites"
	"github.com/goliatone/go-invites/adapters/gocommand"
	"github.com/goliatone/go-invites/adapters/gojob"
	"github.com/goliatone/go-invites/adapters/gologger"
	"github.com/goliatone/go-invites/adapters/natsalert"
	"github.com/goliatone/go-invites/adapters/prommetrics"
	"github.com/goliatone/go-invites/carrier"
	"github.com/goliatone/go-invites/config"
	"github.com/goliatone/go-invites/core"
	"github.com/goliatone/go-invites/httpapi"
	sqlstore "github.com/goliatone/go-invites/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the wired runtime shared by the subcommands.
type app struct {
	file     config.File
	loggers  gologger.Loggers
	client   *persistence.Client
	recorder *prommetrics.Recorder
	queue    *gojob.MemoryQueue
	sink     *natsalert.Sink
	service  *core.Service
	bus      *gocommand.InvitationBus
}

func newApp(ctx context.Context, file config.File, migrate bool) (*app, error) {
	a := &app{file: file, loggers: gologger.ResolveLoggers(nil, nil)}

	serviceCfg, err := core.NewCfgxConfigProvider(file).Load(ctx, core.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("invitesd: service config: %w", err)
	}

	client, err := sqlstore.OpenClient(ctx, file.Database, migrate)
	if err != nil {
		return nil, err
	}
	a.client = client

	grantCache, err := sqlstore.NewGrantCacheService(serviceCfg.Entitlements.GrantCacheTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invitesd: grant cache: %w", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithGrantCache(grantCache))
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.recorder = prommetrics.NewRecorder(registry,
		prommetrics.WithNamespace(file.Metrics.Namespace),
		prommetrics.WithErrorHandler(func(err error) {
			a.loggers.Service.Warn("metrics recorder error", "error", err.Error())
		}),
	)

	a.queue = gojob.NewMemoryQueue(file.Purge.QueueCapacity)

	opts := []core.Option{
		core.WithLoggerProvider(a.loggers.Provider),
		core.WithLogger(a.loggers.Service),
		core.WithConfigProvider(core.NewCfgxConfigProvider(file)),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithMetricsRecorder(a.recorder),
		core.WithPurgeScheduler(gojob.NewPurgeScheduler(a.queue)),
	}
	if url := strings.TrimSpace(file.NATS.URL); url != "" {
		sink, err := natsalert.Connect(url, file.NATS.Subject, nats.Name(serviceCfg.ServiceName))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sink = sink
		opts = append(opts, core.WithAlertSink(sink))
	}

	service, err := invites.NewService(serviceCfg, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = service

	facade, err := invites.NewFacade(service)
	if err != nil {
		a.Close()
		return nil, err
	}
	bus, err := gocommand.NewInvitationBus(gocommand.NewRegistryAdapter(command.NewRegistry()), facade)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.bus = bus
	return a, nil
}

func (a *app) httpServer() (*httpapi.Server, error) {
	opts := []httpapi.Option{
		httpapi.WithIdentityResolver(httpapi.HeaderIdentity(a.file.HTTP.IdentityHeader)),
		httpapi.WithMetricsHandler(a.recorder.Handler()),
		httpapi.WithLogger(a.loggers.HTTP),
	}
	if adminHeader := strings.TrimSpace(a.file.HTTP.AdminHeader); adminHeader != "" {
		a.loggers.HTTP.Warn("admin routes trust a request header, the auth proxy must strip it from client requests",
			"admin_header", adminHeader,
		)
		opts = append(opts, httpapi.WithAdminResolver(httpapi.HeaderIdentity(adminHeader)))
	}
	environ := environMap(os.Environ())
	if strings.TrimSpace(environ["INVITES_CARRIER_SECRET"]) != "" {
		carrierCfg, err := carrier.LoadConfigFromEnv(environ)
		if err != nil {
			return nil, err
		}
		c, err := carrier.New(carrierCfg, nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpapi.WithCarrier(c, a.file.HTTP.ClaimRedirect))
	} else {
		a.loggers.HTTP.Warn("INVITES_CARRIER_SECRET not set, redirect claims disabled")
	}
	return httpapi.NewServer(a.bus, opts...)
}

// purgeWorker logs the purge follow-up. Stored objects live outside this
// service; the owning storage service subscribes to the same job id.
func (a *app) purgeWorker() *gojob.PurgeWorker {
	logger := a.loggers.Purge
	return gojob.NewPurgeWorker(a.queue, func(_ context.Context, purge core.ProfilePurge) error {
		logger.Info("profile purged",
			"profile_id", purge.ProfileID,
			"resource_count", len(purge.ResourceIDs),
			"purged_at", purge.PurgedAt,
		)
		return nil
	}, a.file.Purge.RetryPolicy(), gojob.NewMetricsHook(a.recorder))
}

func (a *app) Close() {
	if a == nil {
		return
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if a.client != nil {
		_ = a.client.Close()
	}
}

func environMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if ok {
			out[key] = value
		}
	}
	return out
}
