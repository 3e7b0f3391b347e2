package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type invitationTokenRecord struct {
	bun.BaseModel `bun:"table:invitation_tokens,alias:it"`

	ID               string     `bun:"id,pk"`
	Token            string     `bun:"token,notnull"`
	TargetResourceID string     `bun:"target_resource_id,notnull"`
	Status           string     `bun:"status,notnull"`
	IssuedAt         time.Time  `bun:"issued_at,notnull"`
	ExpiresAt        time.Time  `bun:"expires_at,notnull"`
	ConsumedBy       *string    `bun:"consumed_by"`
	ConsumedAt       *time.Time `bun:"consumed_at,nullzero"`
	ClaimCompletedAt *time.Time `bun:"claim_completed_at,nullzero"`
	ClaimFailedAt    *time.Time `bun:"claim_failed_at,nullzero"`
}

type profileRecord struct {
	bun.BaseModel `bun:"table:profiles,alias:pr"`

	ID            string    `bun:"id,pk"`
	Kind          string    `bun:"kind,notnull"`
	Status        string    `bun:"status,notnull"`
	OwnerIdentity *string   `bun:"owner_identity"`
	StudioAccess  bool      `bun:"studio_access,notnull"`
	DisplayName   string    `bun:"display_name,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type ownedResourceRecord struct {
	bun.BaseModel `bun:"table:owned_resources,alias:orr"`

	ResourceID string    `bun:"resource_id,pk"`
	ProfileID  string    `bun:"profile_id,notnull"`
	Kind       string    `bun:"kind,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type entitlementGrantRecord struct {
	bun.BaseModel `bun:"table:entitlement_grants,alias:eg"`

	ID               string         `bun:"id,pk"`
	SubjectIdentity  string         `bun:"subject_identity,notnull"`
	ResourceRef      string         `bun:"resource_ref,notnull"`
	Source           string         `bun:"source,notnull"`
	SourceRef        string         `bun:"source_ref,notnull"`
	GrantedAt        time.Time      `bun:"granted_at,notnull"`
	RevokedAt        *time.Time     `bun:"revoked_at,nullzero"`
	RevocationReason string         `bun:"revocation_reason,notnull"`
	Metadata         map[string]any `bun:"metadata,type:jsonb,notnull"`
}
