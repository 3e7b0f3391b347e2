package core

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestIssueToken_RequiresExistingTarget(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.svc.IssueToken(context.Background(), IssueTokenRequest{TargetResourceID: "prof_404"})
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected resource not found, got %v", err)
	}
}

func TestIssueToken_UsesConfiguredDefaultTTL(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	profile, err := h.svc.CreateGuestProfile(ctx, CreateGuestProfileRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	token, err := h.svc.IssueToken(ctx, IssueTokenRequest{TargetResourceID: profile.ID})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token.Status != TokenStatusIssued {
		t.Fatalf("expected issued, got %s", token.Status)
	}
	if got := token.ExpiresAt.Sub(token.IssuedAt); got != 7*24*time.Hour {
		t.Fatalf("expected default ttl, got %s", got)
	}

	short, err := h.svc.IssueToken(ctx, IssueTokenRequest{TargetResourceID: profile.ID, TTL: time.Hour})
	if err != nil {
		t.Fatalf("issue short: %v", err)
	}
	if got := short.ExpiresAt.Sub(short.IssuedAt); got != time.Hour {
		t.Fatalf("expected explicit ttl, got %s", got)
	}
}

func TestIssueToken_RejectsDeletedProfile(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	invite := h.invite(t)
	if _, err := h.svc.Claim(ctx, ClaimRequest{Token: invite.Token.Token, Identity: "usr_1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := h.svc.TransitionProfile(ctx, TransitionProfileRequest{ProfileID: invite.Profile.ID, To: ProfileStatusDeleted}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err := h.svc.IssueToken(ctx, IssueTokenRequest{TargetResourceID: invite.Profile.ID})
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected deleted profile to be an invalid target, got %v", err)
	}
}

func TestLookupToken_ReportsEffectiveExpiry(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	invite := h.invite(t)

	h.clock.Advance(7*24*time.Hour + time.Second)
	token, err := h.svc.LookupToken(ctx, invite.Token.Token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if token.Status != TokenStatusExpired {
		t.Fatalf("expected effective expired status, got %s", token.Status)
	}
	stored, _ := h.stores.tokens.Lookup(ctx, invite.Token.Token)
	if stored.Status != TokenStatusIssued {
		t.Fatalf("expected lookup to stay read-only, got %s", stored.Status)
	}
}

func TestRandomTokenGenerator(t *testing.T) {
	generator := RandomTokenGenerator{}
	first, err := generator.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := generator.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct tokens")
	}
	raw, err := base64.RawURLEncoding.DecodeString(first)
	if err != nil {
		t.Fatalf("expected url-safe base64 token: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 bytes of entropy, got %d", len(raw))
	}
}

func TestInvite_SeedsProfileResourcesAndToken(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	result, err := h.svc.Invite(ctx, InviteRequest{
		DisplayName:   "Ada",
		ResourceKinds: []ResourceKind{ResourceKindWardrobe, ResourceKindEssenceResponse},
		TTL:           48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if result.Profile.Kind != ProfileKindGuest || result.Profile.Status != ProfileStatusPending || result.Profile.Owned() {
		t.Fatalf("expected unowned pending guest, got %#v", result.Profile)
	}
	if len(result.Resources) != 2 {
		t.Fatalf("expected two resources, got %d", len(result.Resources))
	}
	if result.Token.TargetResourceID != result.Profile.ID {
		t.Fatalf("expected token bound to the guest profile")
	}

	if _, err := h.svc.Invite(ctx, InviteRequest{ResourceKinds: []ResourceKind{"canvas"}}); err == nil {
		t.Fatalf("expected unknown resource kind to be rejected")
	}
}
