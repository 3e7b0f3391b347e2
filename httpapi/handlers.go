package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-invites/carrier"
	"github.com/goliatone/go-invites/core"
)

var errInvalidTTL = errors.New("httpapi: invalid ttl, expected a duration such as 72h")

type inviteRequest struct {
	DisplayName   string   `json:"display_name"`
	ResourceKinds []string `json:"resource_kinds"`
	TTL           string   `json:"ttl,omitempty"`
}

type issueTokenRequest struct {
	TargetResourceID string `json:"target_resource_id"`
	TTL              string `json:"ttl,omitempty"`
}

type claimRequest struct {
	Token string `json:"token"`
}

type overrideRequest struct {
	SubjectIdentity string `json:"subject_identity"`
	ResourceRef     string `json:"resource_ref"`
	Reason          string `json:"reason"`
}

type recordGrantRequest struct {
	SubjectIdentity string         `json:"subject_identity"`
	ResourceRef     string         `json:"resource_ref"`
	Source          string         `json:"source"`
	SourceRef       string         `json:"source_ref"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type transitionRequest struct {
	To string `json:"to"`
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var body inviteRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	ttl, err := parseTTL(body.TTL)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	kinds := make([]core.ResourceKind, 0, len(body.ResourceKinds))
	for _, kind := range body.ResourceKinds {
		kinds = append(kinds, core.ResourceKind(strings.TrimSpace(kind)))
	}

	result, err := s.backend.Invite(r.Context(), core.InviteRequest{
		DisplayName:   body.DisplayName,
		ResourceKinds: kinds,
		TTL:           ttl,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := inviteResponse{
		Profile:   toProfileResponse(result.Profile),
		Resources: toResourceResponses(result.Resources),
		Token:     toTokenResponse(result.Token),
	}
	if s.carrier != nil && s.claimRedirect != "" {
		claimURL, err := s.claimURL(result.Token)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		resp.ClaimURL = claimURL
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var body issueTokenRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	ttl, err := parseTTL(body.TTL)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	token, err := s.backend.IssueToken(r.Context(), core.IssueTokenRequest{
		TargetResourceID: body.TargetResourceID,
		TTL:              ttl,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := toTokenResponse(token)
	if s.carrier != nil && s.claimRedirect != "" {
		if resp.ClaimURL, err = s.claimURL(token); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	identity := s.identity(r)
	if identity == "" {
		s.respondError(w, r, ErrUnauthenticated)
		return
	}
	var body claimRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.claim(w, r, body.Token, identity)
}

// handleClaimRedirect claims the token carried by the invite link. An
// anonymous visitor gets a short-lived carrier stored in a cookie so the
// claim can resume after sign-in.
func (s *Server) handleClaimRedirect(w http.ResponseWriter, r *http.Request) {
	token, err := s.carrier.FromRequest(r)
	if err != nil {
		s.carrier.ClearCookie(w)
		s.respondError(w, r, carrierError(err))
		return
	}
	identity := s.identity(r)
	if identity == "" {
		sealed, sealErr := s.carrier.Seal(token)
		if sealErr != nil {
			s.respondError(w, r, sealErr)
			return
		}
		s.carrier.SetCookie(w, sealed)
		s.respondError(w, r, ErrUnauthenticated)
		return
	}
	s.carrier.ClearCookie(w)
	s.claim(w, r, token, identity)
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request, token string, identity string) {
	result, err := s.backend.Claim(r.Context(), core.ClaimRequest{Token: token, Identity: identity})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toClaimResponse(result))
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	identity := s.identity(r)
	ref := r.URL.Query().Get("ref")
	decision, err := s.backend.ResolveEntitlement(r.Context(), identity, ref)
	if err != nil && !decision.Allowed {
		// the resolver fails closed; report a deny rather than an error
		s.logger.Warn("entitlement resolve failed", "resource_ref", ref, "error", err.Error())
	}
	respondJSON(w, http.StatusOK, toDecisionResponse(decision, ref))
}

func (s *Server) handleGrantOverride(w http.ResponseWriter, r *http.Request) {
	var body overrideRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	grant, err := s.backend.GrantOverride(r.Context(), core.GrantOverrideRequest{
		SubjectIdentity: body.SubjectIdentity,
		ResourceRef:     body.ResourceRef,
		Actor:           adminActor(r.Context()),
		Reason:          body.Reason,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toGrantResponse(grant))
}

func (s *Server) handleRecordGrant(w http.ResponseWriter, r *http.Request) {
	var body recordGrantRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	grant, err := s.backend.RecordGrant(r.Context(), core.RecordGrantRequest{
		SubjectIdentity: body.SubjectIdentity,
		ResourceRef:     body.ResourceRef,
		Source:          core.GrantSource(strings.TrimSpace(body.Source)),
		SourceRef:       body.SourceRef,
		Metadata:        body.Metadata,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toGrantResponse(grant))
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	includeRevoked := query.Get("include_revoked") == "true"
	grants, err := s.backend.ListGrants(r.Context(), query.Get("subject"), includeRevoked)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]grantResponse, 0, len(grants))
	for _, grant := range grants {
		out = append(out, toGrantResponse(grant))
	}
	respondJSON(w, http.StatusOK, map[string]any{"grants": out})
}

func (s *Server) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	var body revokeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	grant, err := s.backend.RevokeGrant(r.Context(), core.RevokeGrantRequest{
		GrantID: chi.URLParam(r, "id"),
		Reason:  body.Reason,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toGrantResponse(grant))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var body transitionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	profile, err := s.backend.TransitionProfile(r.Context(), chi.URLParam(r, "id"), body.To)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProfileResponse(profile))
}

// claimURL builds the emailed invite link. Its carrier expires with the token.
func (s *Server) claimURL(token core.InvitationToken) (string, error) {
	sealed, err := s.carrier.SealUntil(token.Token, token.ExpiresAt)
	if err != nil {
		return "", err
	}
	return s.carrier.RedirectURL(s.claimRedirect, sealed)
}

func parseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errInvalidTTL
	}
	return ttl, nil
}

// carrierError maps carrier failures onto the claim outcomes a visitor would
// see for the underlying token.
func carrierError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, carrier.ErrCarrierExpired):
		return core.ErrTokenExpired
	default:
		return core.ErrTokenNotFound
	}
}
