package query

import "strings"

const (
	TypeLookupToken        = "invites.query.token.lookup"
	TypeResolveEntitlement = "invites.query.entitlement.resolve"
	TypeGetProfile         = "invites.query.profile.get"
	TypeListResources      = "invites.query.profile.resources"
	TypeListGrants         = "invites.query.grant.list"
)

type LookupTokenMessage struct {
	Token string
}

func (LookupTokenMessage) Type() string { return TypeLookupToken }

func (m LookupTokenMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return queryValidationError("token", "token is required")
	}
	return nil
}

// ResolveEntitlementMessage carries no Validate: malformed input is answered
// with a deny decision, never an error.
type ResolveEntitlementMessage struct {
	Identity    string
	ResourceRef string
}

func (ResolveEntitlementMessage) Type() string { return TypeResolveEntitlement }

type GetProfileMessage struct {
	ProfileID string
}

func (GetProfileMessage) Type() string { return TypeGetProfile }

func (m GetProfileMessage) Validate() error {
	if strings.TrimSpace(m.ProfileID) == "" {
		return queryValidationError("profile_id", "profile id is required")
	}
	return nil
}

type ListResourcesMessage struct {
	ProfileID string
}

func (ListResourcesMessage) Type() string { return TypeListResources }

func (m ListResourcesMessage) Validate() error {
	if strings.TrimSpace(m.ProfileID) == "" {
		return queryValidationError("profile_id", "profile id is required")
	}
	return nil
}

type ListGrantsMessage struct {
	SubjectIdentity string
	IncludeRevoked  bool
}

func (ListGrantsMessage) Type() string { return TypeListGrants }

func (m ListGrantsMessage) Validate() error {
	if strings.TrimSpace(m.SubjectIdentity) == "" {
		return queryValidationError("subject_identity", "subject identity is required")
	}
	return nil
}
