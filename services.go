package invites

import "github.com/goliatone/go-invites/core"

type Config = core.Config

type TokenConfig = core.TokenConfig

type EntitlementConfig = core.EntitlementConfig

type BundleConfig = core.BundleConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type TokenStore = core.TokenStore
type ProfileStore = core.ProfileStore
type ResourceStore = core.ResourceStore
type GrantStore = core.GrantStore
type AlertSink = core.AlertSink
type PurgeScheduler = core.PurgeScheduler
type MetricsRecorder = core.MetricsRecorder
type TokenGenerator = core.TokenGenerator

type InviteRequest = core.InviteRequest
type IssueTokenRequest = core.IssueTokenRequest
type ClaimRequest = core.ClaimRequest
type ClaimResult = core.ClaimResult
type ClaimOutcome = core.ClaimOutcome
type Decision = core.Decision

type RecordGrantRequest = core.RecordGrantRequest
type GrantOverrideRequest = core.GrantOverrideRequest
type RevokeGrantRequest = core.RevokeGrantRequest

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithTokenStore        = core.WithTokenStore
	WithProfileStore      = core.WithProfileStore
	WithResourceStore     = core.WithResourceStore
	WithGrantStore        = core.WithGrantStore
	WithAlertSink         = core.WithAlertSink
	WithPurgeScheduler    = core.WithPurgeScheduler
	WithTokenGenerator    = core.WithTokenGenerator
	WithClock             = core.WithClock
	WithClaimSettleWait   = core.WithClaimSettleWait
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
