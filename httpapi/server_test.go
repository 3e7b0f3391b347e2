package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-invites/adapters/prommetrics"
	"github.com/goliatone/go-invites/carrier"
	"github.com/goliatone/go-invites/core"
)

func TestClaim_RequiresIdentity(t *testing.T) {
	srv := newTestServer(t, &stubBackend{})
	rec := do(t, srv, http.MethodPost, "/claims", `{"token":"tkn"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVITES_UNAUTHENTICATED" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestClaim_Outcomes(t *testing.T) {
	cases := []struct {
		name    string
		result  core.ClaimResult
		err     error
		status  int
		code    string
		outcome string
	}{
		{
			name:    "granted",
			result:  core.ClaimResult{Outcome: core.ClaimOutcomeGranted, ProfileID: "prof_1", StudioAccess: true},
			status:  http.StatusOK,
			outcome: "granted",
		},
		{
			name:    "consumed by other",
			result:  core.ClaimResult{Outcome: core.ClaimOutcomeConsumedByOther},
			err:     &core.ClaimError{Outcome: core.ClaimOutcomeConsumedByOther, Cause: core.ErrTokenAlreadyConsumed},
			status:  http.StatusConflict,
			code:    core.ErrorCodeTokenAlreadyConsumed,
			outcome: "consumed_by_other",
		},
		{
			name:    "expired",
			result:  core.ClaimResult{Outcome: core.ClaimOutcomeExpired},
			err:     &core.ClaimError{Outcome: core.ClaimOutcomeExpired, Cause: core.ErrTokenExpired},
			status:  http.StatusGone,
			code:    core.ErrorCodeTokenExpired,
			outcome: "expired",
		},
		{
			name:    "partial failure keeps visitor message",
			result:  core.ClaimResult{Outcome: core.ClaimOutcomePartialFailure},
			err:     &core.ClaimError{Outcome: core.ClaimOutcomePartialFailure, Cause: fmt.Errorf("bind owner failed")},
			status:  http.StatusInternalServerError,
			code:    core.ErrorCodeClaimPartialFailure,
			outcome: "partial_failure",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &stubBackend{claimResult: tc.result, claimErr: tc.err}
			srv := newTestServer(t, backend)
			rec := do(t, srv, http.MethodPost, "/claims", `{"token":"tkn"}`, map[string]string{DefaultIdentityHeader: "user-1"})
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if backend.lastClaim.Identity != "user-1" || backend.lastClaim.Token != "tkn" {
				t.Fatalf("unexpected claim request %#v", backend.lastClaim)
			}
			if tc.err == nil {
				var body claimResponse
				decode(t, rec, &body)
				if body.Outcome != tc.outcome || !body.StudioAccess {
					t.Fatalf("unexpected claim response %#v", body)
				}
				return
			}
			var body struct {
				Error errorBody `json:"error"`
			}
			decode(t, rec, &body)
			if body.Error.Code != tc.code || body.Error.Outcome != tc.outcome {
				t.Fatalf("unexpected error body %#v", body.Error)
			}
			if body.Error.Message != core.ClaimOutcome(tc.outcome).Message() {
				t.Fatalf("expected visitor message, got %q", body.Error.Message)
			}
		})
	}
}

func TestResolve_HidesDenyReason(t *testing.T) {
	backend := &stubBackend{decision: core.Decision{Allowed: false, Reason: core.DenyReasonNoGrant, ResourceRef: "masterclass:color"}}
	srv := newTestServer(t, backend)
	rec := do(t, srv, http.MethodGet, "/entitlements?ref=masterclass:color", "", map[string]string{DefaultIdentityHeader: "user-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), string(core.DenyReasonNoGrant)) {
		t.Fatalf("deny reason leaked: %s", rec.Body.String())
	}
	var body decisionResponse
	decode(t, rec, &body)
	if body.Allowed || body.Message != core.DeniedUserMessage || body.ResourceRef != "masterclass:color" {
		t.Fatalf("unexpected decision %#v", body)
	}
}

func TestAdminRoutes_RequireActor(t *testing.T) {
	backend := &stubBackend{}
	srv := newTestServer(t, backend, testAdmin())
	body := `{"subject_identity":"user-1","resource_ref":"masterclass:color","reason":"refund dispute"}`

	rec := do(t, srv, http.MethodPost, "/admin/overrides", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if backend.lastOverride.SubjectIdentity != "" {
		t.Fatalf("override must not reach the backend")
	}

	rec = do(t, srv, http.MethodPost, "/admin/overrides", body, map[string]string{DefaultAdminHeader: "admin@studio"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if backend.lastOverride.Actor != "admin@studio" || backend.lastOverride.ResourceRef != "masterclass:color" {
		t.Fatalf("unexpected override request %#v", backend.lastOverride)
	}

	rec = do(t, srv, http.MethodPost, "/invites", `{"display_name":"Ada"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected invites to require admin, got %d", rec.Code)
	}
}

func TestAdminRoutes_ClosedWithoutResolver(t *testing.T) {
	backend := &stubBackend{}
	srv := newTestServer(t, backend)
	admin := map[string]string{DefaultAdminHeader: "admin@studio"}

	rec := do(t, srv, http.MethodPost, "/admin/overrides", `{"subject_identity":"user-1","resource_ref":"studio","reason":"support"}`, admin)
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != "INVITES_FORBIDDEN" {
		t.Fatalf("expected forged admin header to be refused, got %d %s", rec.Code, rec.Body.String())
	}
	if backend.lastOverride.SubjectIdentity != "" {
		t.Fatalf("override must not reach the backend")
	}
	if rec = do(t, srv, http.MethodPost, "/invites", `{"display_name":"Ada"}`, admin); rec.Code != http.StatusForbidden {
		t.Fatalf("expected invites to stay closed, got %d", rec.Code)
	}
	if backend.lastInvite.DisplayName != "" {
		t.Fatalf("invite must not reach the backend")
	}
}

func TestAdminRoutes_MapDomainErrors(t *testing.T) {
	backend := &stubBackend{
		revokeErr:     fmt.Errorf("%w: grant g1", core.ErrGrantNotFound),
		transitionErr: core.ErrInvalidProfileTransition,
	}
	srv := newTestServer(t, backend, testAdmin())
	admin := map[string]string{DefaultAdminHeader: "admin@studio"}

	rec := do(t, srv, http.MethodDelete, "/admin/grants/g1", `{"reason":"chargeback"}`, admin)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != core.ErrorCodeGrantNotFound {
		t.Fatalf("unexpected revoke response %d %s", rec.Code, rec.Body.String())
	}
	if backend.lastRevoke.GrantID != "g1" || backend.lastRevoke.Reason != "chargeback" {
		t.Fatalf("unexpected revoke request %#v", backend.lastRevoke)
	}

	rec = do(t, srv, http.MethodPost, "/admin/profiles/prof_1/transition", `{"to":"pending"}`, admin)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != core.ErrorCodeInvalidTransition {
		t.Fatalf("unexpected transition response %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/admin/grants", `{"subject_identity":"u","unknown":1}`, admin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown fields to be rejected, got %d", rec.Code)
	}
}

func TestClaimRedirect_ResumesAfterSignIn(t *testing.T) {
	issued := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	now := issued
	c, err := carrier.New(carrier.Config{Secret: strings.Repeat("s", 32)}, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new carrier: %v", err)
	}
	backend := &stubBackend{
		inviteResult: core.InviteResult{Token: core.InvitationToken{
			ID:        "tok_1",
			Token:     "raw-token",
			IssuedAt:  issued,
			ExpiresAt: issued.Add(72 * time.Hour),
		}},
		claimResult: core.ClaimResult{Outcome: core.ClaimOutcomeGranted, ProfileID: "prof_1"},
	}
	srv := newTestServer(t, backend, WithCarrier(c, "https://studio.example.com/claims/redirect"), testAdmin())
	admin := map[string]string{DefaultAdminHeader: "admin@studio"}

	rec := do(t, srv, http.MethodPost, "/invites", `{"display_name":"Ada","resource_kinds":["wardrobe"],"ttl":"72h"}`, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if backend.lastInvite.TTL.Hours() != 72 || len(backend.lastInvite.ResourceKinds) != 1 {
		t.Fatalf("unexpected invite request %#v", backend.lastInvite)
	}
	var invite inviteResponse
	decode(t, rec, &invite)
	claimURL, err := url.Parse(invite.ClaimURL)
	if err != nil || claimURL.Query().Get(carrier.QueryParam) == "" {
		t.Fatalf("expected claim url with carrier, got %q", invite.ClaimURL)
	}

	// the guest opens the email well after the sign-in hop would have lapsed
	now = issued.Add(2 * time.Hour)
	rec = do(t, srv, http.MethodGet, claimURL.RequestURI(), "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous visitor to be asked to sign in, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != carrier.DefaultCookieName {
		t.Fatalf("expected carrier cookie, got %#v", cookies)
	}
	if cookies[0].MaxAge != int(carrier.DefaultTTL/time.Second) {
		t.Fatalf("expected sign-in cookie to use the hop ttl, got %d", cookies[0].MaxAge)
	}

	now = now.Add(10 * time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/claims/redirect", nil)
	req.Header.Set(DefaultIdentityHeader, "user-1")
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected claim after sign-in, got %d: %s", rec.Code, rec.Body.String())
	}
	if backend.lastClaim.Token != "raw-token" || backend.lastClaim.Identity != "user-1" {
		t.Fatalf("expected original token to reach claim, got %#v", backend.lastClaim)
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected carrier cookie to be cleared, got %#v", cleared)
	}

	// the sign-in cookie keeps its own short life
	now = now.Add(carrier.DefaultTTL)
	req = httptest.NewRequest(http.MethodGet, "/claims/redirect", nil)
	req.Header.Set(DefaultIdentityHeader, "user-1")
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusGone || errorCode(t, rec) != core.ErrorCodeTokenExpired {
		t.Fatalf("expected lapsed sign-in cookie to report expiry, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestClaimRedirect_SignedInVisitorClaimsUntilTokenExpiry(t *testing.T) {
	issued := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	now := issued
	c, err := carrier.New(carrier.Config{Secret: strings.Repeat("s", 32)}, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new carrier: %v", err)
	}
	expiresAt := issued.Add(7 * 24 * time.Hour)
	backend := &stubBackend{
		inviteResult: core.InviteResult{Token: core.InvitationToken{ID: "tok_1", Token: "raw-token", IssuedAt: issued, ExpiresAt: expiresAt}},
		claimResult:  core.ClaimResult{Outcome: core.ClaimOutcomeGranted, ProfileID: "prof_1"},
	}
	srv := newTestServer(t, backend, WithCarrier(c, "https://studio.example.com/claims/redirect"), testAdmin())

	rec := do(t, srv, http.MethodPost, "/invites", `{"display_name":"Ada"}`, map[string]string{DefaultAdminHeader: "admin@studio"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var invite inviteResponse
	decode(t, rec, &invite)
	claimURL, err := url.Parse(invite.ClaimURL)
	if err != nil {
		t.Fatalf("parse claim url %q: %v", invite.ClaimURL, err)
	}
	signedIn := map[string]string{DefaultIdentityHeader: "user-1"}

	now = issued.Add(2 * time.Hour)
	rec = do(t, srv, http.MethodGet, claimURL.RequestURI(), "", signedIn)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected link to claim two hours after issue, got %d: %s", rec.Code, rec.Body.String())
	}
	if backend.lastClaim.Token != "raw-token" {
		t.Fatalf("unexpected claim request %#v", backend.lastClaim)
	}

	now = expiresAt.Add(-time.Minute)
	if rec = do(t, srv, http.MethodGet, claimURL.RequestURI(), "", signedIn); rec.Code != http.StatusOK {
		t.Fatalf("expected link valid until token expiry, got %d: %s", rec.Code, rec.Body.String())
	}
	now = expiresAt.Add(time.Minute)
	rec = do(t, srv, http.MethodGet, claimURL.RequestURI(), "", signedIn)
	if rec.Code != http.StatusGone || errorCode(t, rec) != core.ErrorCodeTokenExpired {
		t.Fatalf("expected link to lapse with the token, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestClaimRedirect_TamperedCarrier(t *testing.T) {
	c, err := carrier.New(carrier.Config{Secret: strings.Repeat("s", 32)}, nil)
	if err != nil {
		t.Fatalf("new carrier: %v", err)
	}
	srv := newTestServer(t, &stubBackend{}, WithCarrier(c, ""))
	rec := do(t, srv, http.MethodGet, "/claims/redirect?invite=garbage", "", map[string]string{DefaultIdentityHeader: "user-1"})
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != core.ErrorCodeTokenInvalid {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	recorder := prommetrics.NewRecorder(nil)
	recorder.IncCounter(context.Background(), "invites.claim.total", 1, map[string]string{"status": "success"})
	srv := newTestServer(t, &stubBackend{}, WithMetricsHandler(recorder.Handler()))
	rec := do(t, srv, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "invites_claim_total") {
		t.Fatalf("unexpected metrics response %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewServer_RequiresBackend(t *testing.T) {
	if _, err := NewServer(nil); err == nil {
		t.Fatalf("expected missing backend error")
	}
}

// testAdmin trusts the admin header the way a deployment behind a stripping
// proxy would.
func testAdmin() Option {
	return WithAdminResolver(HeaderIdentity(DefaultAdminHeader))
}

func newTestServer(t *testing.T, backend Backend, opts ...Option) *Server {
	t.Helper()
	srv, err := NewServer(backend, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method string, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error errorBody `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

type stubBackend struct {
	inviteResult  core.InviteResult
	claimResult   core.ClaimResult
	claimErr      error
	decision      core.Decision
	revokeErr     error
	transitionErr error

	lastInvite   core.InviteRequest
	lastClaim    core.ClaimRequest
	lastOverride core.GrantOverrideRequest
	lastRevoke   core.RevokeGrantRequest
}

func (s *stubBackend) Invite(_ context.Context, req core.InviteRequest) (core.InviteResult, error) {
	s.lastInvite = req
	return s.inviteResult, nil
}

func (s *stubBackend) IssueToken(_ context.Context, req core.IssueTokenRequest) (core.InvitationToken, error) {
	return core.InvitationToken{TargetResourceID: req.TargetResourceID}, nil
}

func (s *stubBackend) Claim(_ context.Context, req core.ClaimRequest) (core.ClaimResult, error) {
	s.lastClaim = req
	return s.claimResult, s.claimErr
}

func (s *stubBackend) ResolveEntitlement(_ context.Context, _ string, ref string) (core.Decision, error) {
	decision := s.decision
	if decision.ResourceRef == "" {
		decision.ResourceRef = ref
	}
	return decision, nil
}

func (s *stubBackend) GrantOverride(_ context.Context, req core.GrantOverrideRequest) (core.EntitlementGrant, error) {
	s.lastOverride = req
	return core.EntitlementGrant{ID: "g1", SubjectIdentity: req.SubjectIdentity, ResourceRef: req.ResourceRef, Source: core.GrantSourceAdminOverride}, nil
}

func (s *stubBackend) RecordGrant(_ context.Context, req core.RecordGrantRequest) (core.EntitlementGrant, error) {
	return core.EntitlementGrant{ID: "g2", SubjectIdentity: req.SubjectIdentity, Source: req.Source}, nil
}

func (s *stubBackend) RevokeGrant(_ context.Context, req core.RevokeGrantRequest) (core.EntitlementGrant, error) {
	s.lastRevoke = req
	return core.EntitlementGrant{}, s.revokeErr
}

func (s *stubBackend) TransitionProfile(_ context.Context, profileID string, to string) (core.Profile, error) {
	return core.Profile{ID: profileID, Status: core.ProfileStatus(to)}, s.transitionErr
}

func (s *stubBackend) ListGrants(context.Context, string, bool) ([]core.EntitlementGrant, error) {
	return nil, nil
}
