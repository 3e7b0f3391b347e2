package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type IssueTokenInput struct {
	Token            string
	TargetResourceID string
	IssuedAt         time.Time
	ExpiresAt        time.Time
}

// TokenStore persists invitation tokens. MarkConsumed must be a single
// conditional write: concurrent callers racing on one token get one winner.
type TokenStore interface {
	Create(ctx context.Context, in IssueTokenInput) (InvitationToken, error)
	Lookup(ctx context.Context, token string) (InvitationToken, error)
	MarkConsumed(ctx context.Context, token string, identity string, now time.Time) (InvitationToken, error)
	MarkExpired(ctx context.Context, token string, now time.Time) error
	// MarkClaimSettled records the end of the transfer that followed a won
	// MarkConsumed. Only the first settlement is kept.
	MarkClaimSettled(ctx context.Context, token string, settlement ClaimSettlement, at time.Time) error
}

type ClaimSettlement string

const (
	ClaimSettlementCompleted ClaimSettlement = "completed"
	ClaimSettlementFailed    ClaimSettlement = "failed"
)

func (s ClaimSettlement) Valid() bool {
	return s == ClaimSettlementCompleted || s == ClaimSettlementFailed
}

type CreateProfileInput struct {
	Kind        ProfileKind
	Status      ProfileStatus
	DisplayName string
}

// ProfileStore applies profile mutations as conditional updates keyed on the
// current status or owner so concurrent writers never overwrite each other.
type ProfileStore interface {
	Create(ctx context.Context, in CreateProfileInput) (Profile, error)
	Get(ctx context.Context, id string) (Profile, error)
	BindOwner(ctx context.Context, id string, identity string) (Profile, error)
	UpdateStatus(ctx context.Context, id string, from ProfileStatus, to ProfileStatus) (Profile, error)
	SetStudioAccess(ctx context.Context, id string, enabled bool) error
	FindByOwner(ctx context.Context, identity string) ([]Profile, error)
}

type CreateResourceInput struct {
	ProfileID string
	Kind      ResourceKind
}

type ResourceStore interface {
	Create(ctx context.Context, in CreateResourceInput) (OwnedResource, error)
	Get(ctx context.Context, resourceID string) (OwnedResource, error)
	ListByProfile(ctx context.Context, profileID string) ([]OwnedResource, error)
}

type AppendGrantInput struct {
	SubjectIdentity string
	ResourceRef     string
	Source          GrantSource
	SourceRef       string
	GrantedAt       time.Time
	Metadata        map[string]any
}

// GrantStore is the registry of entitlement grants. Append is idempotent for
// an active (subject, resource_ref, source, source_ref) tuple.
type GrantStore interface {
	Append(ctx context.Context, in AppendGrantInput) (EntitlementGrant, error)
	Revoke(ctx context.Context, id string, reason string, at time.Time) (EntitlementGrant, error)
	Get(ctx context.Context, id string) (EntitlementGrant, error)
	ListActive(ctx context.Context, subject string) ([]EntitlementGrant, error)
	ListBySubject(ctx context.Context, subject string) ([]EntitlementGrant, error)
}

type StoreProvider interface {
	TokenStore() TokenStore
	ProfileStore() ProfileStore
	ResourceStore() ResourceStore
	GrantStore() GrantStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type ClaimAlert struct {
	TokenID          string
	TargetResourceID string
	Identity         string
	ProfileID        string
	Reason           string
	OccurredAt       time.Time
}

// AlertSink receives conditions an operator must act on, such as a consumed
// token whose ownership transfer did not complete.
type AlertSink interface {
	ClaimPartialFailure(ctx context.Context, alert ClaimAlert) error
}

type ProfilePurge struct {
	ProfileID   string
	ResourceIDs []string
	PurgedAt    time.Time
}

// PurgeScheduler hands deleted profiles to the follow-up job that removes
// stored objects outside the database.
type PurgeScheduler interface {
	SchedulePurge(ctx context.Context, purge ProfilePurge) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Clock is swapped in tests to exercise expiry.
type Clock func() time.Time

// InvitationService is the surface consumed by the command, query and HTTP
// adapters.
type InvitationService interface {
	Invite(ctx context.Context, req InviteRequest) (InviteResult, error)
	IssueToken(ctx context.Context, req IssueTokenRequest) (InvitationToken, error)
	LookupToken(ctx context.Context, token string) (InvitationToken, error)
	Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error)
	ResolveEntitlement(ctx context.Context, identity string, resourceRef string) Decision
	CreateGuestProfile(ctx context.Context, req CreateGuestProfileRequest) (Profile, error)
	GetProfile(ctx context.Context, profileID string) (Profile, error)
	ListResources(ctx context.Context, profileID string) ([]OwnedResource, error)
	AttachResource(ctx context.Context, req AttachResourceRequest) (OwnedResource, error)
	TransitionProfile(ctx context.Context, req TransitionProfileRequest) (Profile, error)
	BindOwner(ctx context.Context, profileID string, identity string) (Profile, error)
	RefreshStudioAccess(ctx context.Context, identity string) ([]Profile, error)
	RecordGrant(ctx context.Context, req RecordGrantRequest) (EntitlementGrant, error)
	GrantOverride(ctx context.Context, req GrantOverrideRequest) (EntitlementGrant, error)
	RevokeGrant(ctx context.Context, req RevokeGrantRequest) (EntitlementGrant, error)
	ListGrants(ctx context.Context, req ListGrantsRequest) ([]EntitlementGrant, error)
}
