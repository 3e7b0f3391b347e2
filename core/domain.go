package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTokenNotFound            = errors.New("core: invitation token not found")
	ErrTokenAlreadyConsumed     = errors.New("core: invitation token already consumed")
	ErrTokenExpired             = errors.New("core: invitation token expired")
	ErrProfileNotFound          = errors.New("core: profile not found")
	ErrResourceNotFound         = errors.New("core: resource not found")
	ErrOwnerMismatch            = errors.New("core: profile owned by a different identity")
	ErrInvalidProfileTransition = errors.New("core: invalid profile status transition")
	ErrProfileDeleted           = errors.New("core: profile is deleted")
	ErrGrantNotFound            = errors.New("core: entitlement grant not found")
	ErrGrantAlreadyRevoked      = errors.New("core: entitlement grant already revoked")
	ErrReservedGrantSource      = errors.New("core: grant source is reserved")
)

type TokenStatus string

const (
	TokenStatusIssued   TokenStatus = "issued"
	TokenStatusConsumed TokenStatus = "consumed"
	TokenStatusExpired  TokenStatus = "expired"
)

type InvitationToken struct {
	ID               string
	Token            string
	TargetResourceID string
	Status           TokenStatus
	IssuedAt         time.Time
	ExpiresAt        time.Time
	ConsumedBy       string
	ConsumedAt       *time.Time
	ClaimCompletedAt *time.Time
	ClaimFailedAt    *time.Time
}

// ClaimSettled reports whether the identity that consumed the token has
// recorded how its transfer ended.
func (t InvitationToken) ClaimSettled() bool {
	return t.ClaimCompletedAt != nil || t.ClaimFailedAt != nil
}

// ExpiredAt reports whether the token can no longer be claimed at now.
func (t InvitationToken) ExpiredAt(now time.Time) bool {
	if t.Status == TokenStatusExpired {
		return true
	}
	return !t.ExpiresAt.After(now)
}

type ProfileKind string

const (
	ProfileKindGuest  ProfileKind = "guest"
	ProfileKindMember ProfileKind = "member"
)

type ProfileStatus string

const (
	ProfileStatusPending  ProfileStatus = "pending"
	ProfileStatusActive   ProfileStatus = "active"
	ProfileStatusArchived ProfileStatus = "archived"
	ProfileStatusDeleted  ProfileStatus = "deleted"
)

type Profile struct {
	ID            string
	Kind          ProfileKind
	Status        ProfileStatus
	OwnerIdentity string
	StudioAccess  bool
	DisplayName   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p Profile) Owned() bool {
	return strings.TrimSpace(p.OwnerIdentity) != ""
}

// ValidateProfileTransition checks an edge against the profile status table.
// deleted is terminal and a profile must be claimed before it can be archived.
func ValidateProfileTransition(current, next ProfileStatus) error {
	if !profileTransitionAllowed(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidProfileTransition, current, next)
	}
	return nil
}

func profileTransitionAllowed(current, next ProfileStatus) bool {
	allowed := map[ProfileStatus]map[ProfileStatus]struct{}{
		ProfileStatusPending: {
			ProfileStatusActive: {},
		},
		ProfileStatusActive: {
			ProfileStatusArchived: {},
			ProfileStatusDeleted:  {},
		},
		ProfileStatusArchived: {
			ProfileStatusActive:  {},
			ProfileStatusDeleted: {},
		},
	}
	nextSet, ok := allowed[current]
	if !ok {
		return false
	}
	_, ok = nextSet[next]
	return ok
}

func ParseProfileStatus(value string) (ProfileStatus, error) {
	status := ProfileStatus(strings.TrimSpace(strings.ToLower(value)))
	switch status {
	case ProfileStatusPending, ProfileStatusActive, ProfileStatusArchived, ProfileStatusDeleted:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidProfileTransition, value)
	}
}

type ResourceKind string

const (
	ResourceKindWardrobe          ResourceKind = "wardrobe"
	ResourceKindEssenceResponse   ResourceKind = "essence_response"
	ResourceKindTailorMeasurement ResourceKind = "tailor_measurement"
)

func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceKindWardrobe, ResourceKindEssenceResponse, ResourceKindTailorMeasurement:
		return true
	default:
		return false
	}
}

type OwnedResource struct {
	ResourceID string
	ProfileID  string
	Kind       ResourceKind
	CreatedAt  time.Time
}

type GrantSource string

const (
	GrantSourceDirectPurchase  GrantSource = "direct_purchase"
	GrantSourceBundledOffer    GrantSource = "bundled_offer"
	GrantSourceAdminOverride   GrantSource = "admin_override"
	GrantSourceInvitationClaim GrantSource = "invitation_claim"
)

func (s GrantSource) Valid() bool {
	switch s {
	case GrantSourceDirectPurchase, GrantSourceBundledOffer, GrantSourceAdminOverride, GrantSourceInvitationClaim:
		return true
	default:
		return false
	}
}

type EntitlementGrant struct {
	ID               string
	SubjectIdentity  string
	ResourceRef      string
	Source           GrantSource
	SourceRef        string
	GrantedAt        time.Time
	RevokedAt        *time.Time
	RevocationReason string
	Metadata         map[string]any
}

func (g EntitlementGrant) Active() bool {
	return g.RevokedAt == nil
}

const (
	// StudioResourceRef is the symbolic resource unlocked by an invitation claim.
	StudioResourceRef = "studio"

	studioTierPrefix = StudioResourceRef + ":"
)

// NormalizeResourceRef lowercases and trims a resource reference such as
// "masterclass:123" or "studio".
func NormalizeResourceRef(ref string) string {
	return strings.TrimSpace(strings.ToLower(ref))
}

// IsStudioTier reports whether ref belongs to the client-portal studio tier.
func IsStudioTier(ref string) bool {
	ref = NormalizeResourceRef(ref)
	return ref == StudioResourceRef || strings.HasPrefix(ref, studioTierPrefix)
}
