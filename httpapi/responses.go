package httpapi

import (
	"time"

	"github.com/goliatone/go-invites/core"
)

type profileResponse struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	OwnerIdentity string    `json:"owner_identity,omitempty"`
	StudioAccess  bool      `json:"studio_access"`
	DisplayName   string    `json:"display_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type resourceResponse struct {
	ResourceID string    `json:"resource_id"`
	ProfileID  string    `json:"profile_id"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
}

// tokenResponse is only returned to admins issuing invites, so it carries the
// raw token string.
type tokenResponse struct {
	ID               string    `json:"id"`
	Token            string    `json:"token"`
	TargetResourceID string    `json:"target_resource_id"`
	Status           string    `json:"status"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	ClaimURL         string    `json:"claim_url,omitempty"`
}

type inviteResponse struct {
	Profile   profileResponse    `json:"profile"`
	Resources []resourceResponse `json:"resources"`
	Token     tokenResponse      `json:"token"`
	ClaimURL  string             `json:"claim_url,omitempty"`
}

type claimResponse struct {
	Outcome          string   `json:"outcome"`
	Message          string   `json:"message"`
	ProfileID        string   `json:"profile_id,omitempty"`
	OwnedResourceIDs []string `json:"owned_resource_ids"`
	StudioAccess     bool     `json:"studio_access"`
}

type decisionResponse struct {
	ResourceRef string `json:"resource_ref"`
	Allowed     bool   `json:"allowed"`
	Message     string `json:"message,omitempty"`
}

type grantResponse struct {
	ID               string         `json:"id"`
	SubjectIdentity  string         `json:"subject_identity"`
	ResourceRef      string         `json:"resource_ref"`
	Source           string         `json:"source"`
	SourceRef        string         `json:"source_ref,omitempty"`
	GrantedAt        time.Time      `json:"granted_at"`
	RevokedAt        *time.Time     `json:"revoked_at,omitempty"`
	RevocationReason string         `json:"revocation_reason,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func toProfileResponse(p core.Profile) profileResponse {
	return profileResponse{
		ID:            p.ID,
		Kind:          string(p.Kind),
		Status:        string(p.Status),
		OwnerIdentity: p.OwnerIdentity,
		StudioAccess:  p.StudioAccess,
		DisplayName:   p.DisplayName,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toResourceResponses(resources []core.OwnedResource) []resourceResponse {
	out := make([]resourceResponse, 0, len(resources))
	for _, resource := range resources {
		out = append(out, resourceResponse{
			ResourceID: resource.ResourceID,
			ProfileID:  resource.ProfileID,
			Kind:       string(resource.Kind),
			CreatedAt:  resource.CreatedAt,
		})
	}
	return out
}

func toTokenResponse(t core.InvitationToken) tokenResponse {
	return tokenResponse{
		ID:               t.ID,
		Token:            t.Token,
		TargetResourceID: t.TargetResourceID,
		Status:           string(t.Status),
		IssuedAt:         t.IssuedAt,
		ExpiresAt:        t.ExpiresAt,
	}
}

func toClaimResponse(r core.ClaimResult) claimResponse {
	ids := r.OwnedResourceIDs
	if ids == nil {
		ids = []string{}
	}
	return claimResponse{
		Outcome:          string(r.Outcome),
		Message:          r.Outcome.Message(),
		ProfileID:        r.ProfileID,
		OwnedResourceIDs: ids,
		StudioAccess:     r.StudioAccess,
	}
}

// toDecisionResponse hides deny reasons; they are internal codes.
func toDecisionResponse(d core.Decision, requestedRef string) decisionResponse {
	ref := d.ResourceRef
	if ref == "" {
		ref = core.NormalizeResourceRef(requestedRef)
	}
	resp := decisionResponse{ResourceRef: ref, Allowed: d.Allowed}
	if !d.Allowed {
		resp.Message = d.UserMessage()
	}
	return resp
}

func toGrantResponse(g core.EntitlementGrant) grantResponse {
	return grantResponse{
		ID:               g.ID,
		SubjectIdentity:  g.SubjectIdentity,
		ResourceRef:      g.ResourceRef,
		Source:           string(g.Source),
		SourceRef:        g.SourceRef,
		GrantedAt:        g.GrantedAt,
		RevokedAt:        g.RevokedAt,
		RevocationReason: g.RevocationReason,
		Metadata:         g.Metadata,
	}
}
