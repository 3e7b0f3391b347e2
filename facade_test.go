package invites

import (
	"context"
	"testing"

	invitescommand "github.com/goliatone/go-invites/command"
	"github.com/goliatone/go-invites/core"
	invitesquery "github.com/goliatone/go-invites/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeService{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Claim == nil || commands.Invite == nil || commands.GrantOverride == nil || commands.TransitionProfile == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.ResolveEntitlement == nil || queries.LookupToken == nil || queries.ListGrants == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().RevokeGrant.Execute(context.Background(), invitescommand.RevokeGrantMessage{
		Request: core.RevokeGrantRequest{GrantID: "grant_1", Reason: "refund"},
	}); err != nil {
		t.Fatalf("execute revoke grant command: %v", err)
	}
	if svc.lastRevoke.GrantID != "grant_1" || svc.lastRevoke.Reason != "refund" {
		t.Fatalf("unexpected revoke delegation payload: %#v", svc.lastRevoke)
	}

	decision, err := facade.Queries().ResolveEntitlement.Query(context.Background(), invitesquery.ResolveEntitlementMessage{
		Identity:    "user-1",
		ResourceRef: "studio",
	})
	if err != nil {
		t.Fatalf("query resolve entitlement: %v", err)
	}
	if !decision.Allowed || decision.Source != core.GrantSourceInvitationClaim {
		t.Fatalf("unexpected decision: %#v", decision)
	}
}

func TestFacade_EntitlementReaderOverride(t *testing.T) {
	override := stubEntitlementReader{decision: core.Decision{Allowed: false, Reason: core.DenyReasonNoGrant}}
	facade, err := NewFacade(&stubFacadeService{}, WithEntitlementReader(override))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	decision, err := facade.Queries().ResolveEntitlement.Query(context.Background(), invitesquery.ResolveEntitlementMessage{
		Identity:    "user-1",
		ResourceRef: "studio",
	})
	if err != nil {
		t.Fatalf("query resolve entitlement: %v", err)
	}
	if decision.Allowed || decision.Reason != core.DenyReasonNoGrant {
		t.Fatalf("expected override reader decision, got %#v", decision)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubEntitlementReader struct {
	decision core.Decision
}

func (s stubEntitlementReader) ResolveEntitlement(context.Context, string, string) core.Decision {
	return s.decision
}

type stubFacadeService struct {
	lastRevoke core.RevokeGrantRequest
}

func (s *stubFacadeService) Invite(context.Context, core.InviteRequest) (core.InviteResult, error) {
	return core.InviteResult{Profile: core.Profile{ID: "prof_1"}}, nil
}

func (s *stubFacadeService) IssueToken(context.Context, core.IssueTokenRequest) (core.InvitationToken, error) {
	return core.InvitationToken{ID: "tok_1"}, nil
}

func (s *stubFacadeService) Claim(context.Context, core.ClaimRequest) (core.ClaimResult, error) {
	return core.ClaimResult{Outcome: core.ClaimOutcomeGranted}, nil
}

func (s *stubFacadeService) CreateGuestProfile(context.Context, core.CreateGuestProfileRequest) (core.Profile, error) {
	return core.Profile{ID: "prof_1"}, nil
}

func (s *stubFacadeService) AttachResource(context.Context, core.AttachResourceRequest) (core.OwnedResource, error) {
	return core.OwnedResource{ResourceID: "res_1"}, nil
}

func (s *stubFacadeService) TransitionProfile(context.Context, core.TransitionProfileRequest) (core.Profile, error) {
	return core.Profile{ID: "prof_1"}, nil
}

func (s *stubFacadeService) BindOwner(context.Context, string, string) (core.Profile, error) {
	return core.Profile{ID: "prof_1"}, nil
}

func (s *stubFacadeService) RefreshStudioAccess(context.Context, string) ([]core.Profile, error) {
	return nil, nil
}

func (s *stubFacadeService) RecordGrant(context.Context, core.RecordGrantRequest) (core.EntitlementGrant, error) {
	return core.EntitlementGrant{ID: "grant_1"}, nil
}

func (s *stubFacadeService) GrantOverride(context.Context, core.GrantOverrideRequest) (core.EntitlementGrant, error) {
	return core.EntitlementGrant{ID: "grant_2"}, nil
}

func (s *stubFacadeService) RevokeGrant(_ context.Context, req core.RevokeGrantRequest) (core.EntitlementGrant, error) {
	s.lastRevoke = req
	return core.EntitlementGrant{ID: req.GrantID}, nil
}

func (s *stubFacadeService) LookupToken(context.Context, string) (core.InvitationToken, error) {
	return core.InvitationToken{ID: "tok_1"}, nil
}

func (s *stubFacadeService) ResolveEntitlement(_ context.Context, _ string, ref string) core.Decision {
	return core.Decision{Allowed: true, Source: core.GrantSourceInvitationClaim, ResourceRef: ref}
}

func (s *stubFacadeService) GetProfile(context.Context, string) (core.Profile, error) {
	return core.Profile{ID: "prof_1"}, nil
}

func (s *stubFacadeService) ListResources(context.Context, string) ([]core.OwnedResource, error) {
	return nil, nil
}

func (s *stubFacadeService) ListGrants(context.Context, core.ListGrantsRequest) ([]core.EntitlementGrant, error) {
	return nil, nil
}
