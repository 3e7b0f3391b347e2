package command

import (
	"strings"

	"github.com/goliatone/go-invites/core"
)

const (
	TypeInvite              = "invites.command.invite"
	TypeIssueToken          = "invites.command.token.issue"
	TypeClaim               = "invites.command.claim"
	TypeCreateGuestProfile  = "invites.command.profile.create_guest"
	TypeAttachResource      = "invites.command.profile.attach_resource"
	TypeTransitionProfile   = "invites.command.profile.transition"
	TypeBindOwner           = "invites.command.profile.bind_owner"
	TypeRefreshStudioAccess = "invites.command.profile.refresh_studio"
	TypeRecordGrant         = "invites.command.grant.record"
	TypeGrantOverride       = "invites.command.grant.override"
	TypeRevokeGrant         = "invites.command.grant.revoke"
)

type InviteMessage struct {
	Request core.InviteRequest
}

func (InviteMessage) Type() string { return TypeInvite }

func (m InviteMessage) Validate() error {
	for _, kind := range m.Request.ResourceKinds {
		if !kind.Valid() {
			return commandValidationError("resource_kinds", "unsupported resource kind "+string(kind))
		}
	}
	if m.Request.TTL < 0 {
		return commandValidationError("ttl", "ttl must not be negative")
	}
	return nil
}

type IssueTokenMessage struct {
	Request core.IssueTokenRequest
}

func (IssueTokenMessage) Type() string { return TypeIssueToken }

func (m IssueTokenMessage) Validate() error {
	if strings.TrimSpace(m.Request.TargetResourceID) == "" {
		return commandValidationError("target_resource_id", "target resource id is required")
	}
	if m.Request.TTL < 0 {
		return commandValidationError("ttl", "ttl must not be negative")
	}
	return nil
}

type ClaimMessage struct {
	Request core.ClaimRequest
}

func (ClaimMessage) Type() string { return TypeClaim }

// Validate only checks identity. An empty token is a user-facing claim
// outcome and is left to the service.
func (m ClaimMessage) Validate() error {
	if strings.TrimSpace(m.Request.Identity) == "" {
		return commandValidationError("identity", "authenticated identity is required")
	}
	return nil
}

type CreateGuestProfileMessage struct {
	Request core.CreateGuestProfileRequest
}

func (CreateGuestProfileMessage) Type() string { return TypeCreateGuestProfile }

func (CreateGuestProfileMessage) Validate() error { return nil }

type AttachResourceMessage struct {
	Request core.AttachResourceRequest
}

func (AttachResourceMessage) Type() string { return TypeAttachResource }

func (m AttachResourceMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProfileID) == "" {
		return commandValidationError("profile_id", "profile id is required")
	}
	if !m.Request.Kind.Valid() {
		return commandValidationError("kind", "unsupported resource kind "+string(m.Request.Kind))
	}
	return nil
}

type TransitionProfileMessage struct {
	ProfileID string
	To        string
}

func (TransitionProfileMessage) Type() string { return TypeTransitionProfile }

func (m TransitionProfileMessage) Validate() error {
	if strings.TrimSpace(m.ProfileID) == "" {
		return commandValidationError("profile_id", "profile id is required")
	}
	if _, err := core.ParseProfileStatus(m.To); err != nil {
		return commandWrapValidation(err, "command: invalid target status")
	}
	return nil
}

type BindOwnerMessage struct {
	ProfileID string
	Identity  string
}

func (BindOwnerMessage) Type() string { return TypeBindOwner }

func (m BindOwnerMessage) Validate() error {
	if strings.TrimSpace(m.ProfileID) == "" {
		return commandValidationError("profile_id", "profile id is required")
	}
	if strings.TrimSpace(m.Identity) == "" {
		return commandValidationError("identity", "identity is required")
	}
	return nil
}

type RefreshStudioAccessMessage struct {
	Identity string
}

func (RefreshStudioAccessMessage) Type() string { return TypeRefreshStudioAccess }

func (m RefreshStudioAccessMessage) Validate() error {
	if strings.TrimSpace(m.Identity) == "" {
		return commandValidationError("identity", "identity is required")
	}
	return nil
}

type RecordGrantMessage struct {
	Request core.RecordGrantRequest
}

func (RecordGrantMessage) Type() string { return TypeRecordGrant }

func (m RecordGrantMessage) Validate() error {
	if strings.TrimSpace(m.Request.SubjectIdentity) == "" {
		return commandValidationError("subject_identity", "subject identity is required")
	}
	if core.NormalizeResourceRef(m.Request.ResourceRef) == "" {
		return commandValidationError("resource_ref", "resource ref is required")
	}
	switch m.Request.Source {
	case core.GrantSourceDirectPurchase, core.GrantSourceBundledOffer:
		return nil
	default:
		return commandValidationError("source", "source must be direct_purchase or bundled_offer")
	}
}

type GrantOverrideMessage struct {
	Request core.GrantOverrideRequest
}

func (GrantOverrideMessage) Type() string { return TypeGrantOverride }

func (m GrantOverrideMessage) Validate() error {
	if strings.TrimSpace(m.Request.SubjectIdentity) == "" {
		return commandValidationError("subject_identity", "subject identity is required")
	}
	if core.NormalizeResourceRef(m.Request.ResourceRef) == "" {
		return commandValidationError("resource_ref", "resource ref is required")
	}
	if strings.TrimSpace(m.Request.Actor) == "" {
		return commandValidationError("actor", "override actor is required")
	}
	return nil
}

type RevokeGrantMessage struct {
	Request core.RevokeGrantRequest
}

func (RevokeGrantMessage) Type() string { return TypeRevokeGrant }

func (m RevokeGrantMessage) Validate() error {
	if strings.TrimSpace(m.Request.GrantID) == "" {
		return commandValidationError("grant_id", "grant id is required")
	}
	return nil
}
