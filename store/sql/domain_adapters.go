package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-invites/core"
)

func newInvitationTokenRecord(id string, in core.IssueTokenInput) *invitationTokenRecord {
	return &invitationTokenRecord{
		ID:               id,
		Token:            strings.TrimSpace(in.Token),
		TargetResourceID: strings.TrimSpace(in.TargetResourceID),
		Status:           string(core.TokenStatusIssued),
		IssuedAt:         in.IssuedAt.UTC(),
		ExpiresAt:        in.ExpiresAt.UTC(),
	}
}

func (r *invitationTokenRecord) toDomain() core.InvitationToken {
	if r == nil {
		return core.InvitationToken{}
	}
	token := core.InvitationToken{
		ID:               r.ID,
		Token:            r.Token,
		TargetResourceID: r.TargetResourceID,
		Status:           core.TokenStatus(r.Status),
		IssuedAt:         r.IssuedAt.UTC(),
		ExpiresAt:        r.ExpiresAt.UTC(),
		ConsumedAt:       cloneTimePointer(r.ConsumedAt),
		ClaimCompletedAt: cloneTimePointer(r.ClaimCompletedAt),
		ClaimFailedAt:    cloneTimePointer(r.ClaimFailedAt),
	}
	if r.ConsumedBy != nil {
		token.ConsumedBy = *r.ConsumedBy
	}
	return token
}

func newProfileRecord(id string, in core.CreateProfileInput, now time.Time) *profileRecord {
	kind := in.Kind
	if kind == "" {
		kind = core.ProfileKindGuest
	}
	status := in.Status
	if status == "" {
		status = core.ProfileStatusPending
	}
	return &profileRecord{
		ID:          id,
		Kind:        string(kind),
		Status:      string(status),
		DisplayName: strings.TrimSpace(in.DisplayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *profileRecord) toDomain() core.Profile {
	if r == nil {
		return core.Profile{}
	}
	profile := core.Profile{
		ID:           r.ID,
		Kind:         core.ProfileKind(r.Kind),
		Status:       core.ProfileStatus(r.Status),
		StudioAccess: r.StudioAccess,
		DisplayName:  r.DisplayName,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.OwnerIdentity != nil {
		profile.OwnerIdentity = *r.OwnerIdentity
	}
	return profile
}

func (r *ownedResourceRecord) toDomain() core.OwnedResource {
	if r == nil {
		return core.OwnedResource{}
	}
	return core.OwnedResource{
		ResourceID: r.ResourceID,
		ProfileID:  r.ProfileID,
		Kind:       core.ResourceKind(r.Kind),
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func newEntitlementGrantRecord(id string, in core.AppendGrantInput) *entitlementGrantRecord {
	return &entitlementGrantRecord{
		ID:              id,
		SubjectIdentity: in.SubjectIdentity,
		ResourceRef:     in.ResourceRef,
		Source:          string(in.Source),
		SourceRef:       in.SourceRef,
		GrantedAt:       in.GrantedAt.UTC(),
		Metadata:        copyAnyMap(in.Metadata),
	}
}

func (r *entitlementGrantRecord) toDomain() core.EntitlementGrant {
	if r == nil {
		return core.EntitlementGrant{}
	}
	return core.EntitlementGrant{
		ID:               r.ID,
		SubjectIdentity:  r.SubjectIdentity,
		ResourceRef:      r.ResourceRef,
		Source:           core.GrantSource(r.Source),
		SourceRef:        r.SourceRef,
		GrantedAt:        r.GrantedAt.UTC(),
		RevokedAt:        cloneTimePointer(r.RevokedAt),
		RevocationReason: r.RevocationReason,
		Metadata:         copyAnyMap(r.Metadata),
	}
}

func grantsToDomain(records []*entitlementGrantRecord) []core.EntitlementGrant {
	out := make([]core.EntitlementGrant, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
