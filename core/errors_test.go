package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		status   int
	}{
		{err: ErrTokenNotFound, textCode: ErrorCodeTokenInvalid, status: http.StatusNotFound},
		{err: ErrTokenExpired, textCode: ErrorCodeTokenExpired, status: http.StatusGone},
		{err: ErrTokenAlreadyConsumed, textCode: ErrorCodeTokenAlreadyConsumed, status: http.StatusConflict},
		{err: fmt.Errorf("bind: %w", ErrOwnerMismatch), textCode: ErrorCodeOwnerMismatch, status: http.StatusConflict},
		{err: ErrInvalidProfileTransition, textCode: ErrorCodeInvalidTransition, status: http.StatusConflict},
		{err: ErrResourceNotFound, textCode: ErrorCodeResourceNotFound, status: http.StatusNotFound},
		{err: ErrGrantNotFound, textCode: ErrorCodeGrantNotFound, status: http.StatusNotFound},
		{err: ErrReservedGrantSource, textCode: ErrorCodeBadInput, status: http.StatusBadRequest},
		{err: stderrors.New("database is on fire"), textCode: "INTERNAL_ERROR", status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		mapped := MapError(tc.err)
		if mapped == nil {
			t.Fatalf("expected mapped error for %v", tc.err)
		}
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%v: expected text code %q, got %q", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, mapped.Code)
		}
		if !stderrors.Is(mapped, tc.err) {
			t.Fatalf("%v: expected mapped error to unwrap to the original", tc.err)
		}
	}
}

func TestClaimError_ToServiceError(t *testing.T) {
	claimErr := newClaimError(ClaimOutcomePartialFailure, stderrors.New("bind owner: boom"))
	mapped := MapError(claimErr)
	if mapped.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", mapped.Category)
	}
	if mapped.TextCode != ErrorCodeClaimPartialFailure {
		t.Fatalf("expected partial failure text code, got %q", mapped.TextCode)
	}
	if mapped.Metadata["outcome"] != string(ClaimOutcomePartialFailure) {
		t.Fatalf("expected outcome metadata, got %#v", mapped.Metadata)
	}
	var unwrapped *ClaimError
	if !stderrors.As(mapped, &unwrapped) || unwrapped.Outcome != ClaimOutcomePartialFailure {
		t.Fatalf("expected claim error to stay reachable")
	}
}

func TestServiceMethods_MapErrorsToStableServiceCodes(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.svc.IssueToken(ctx, IssueTokenRequest{TargetResourceID: "prof_missing"})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ErrorCodeResourceNotFound {
		t.Fatalf("expected resource not found code, got %q", richErr.TextCode)
	}

	_, err = h.svc.Claim(ctx, ClaimRequest{Token: "unknown", Identity: "usr_1"})
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ErrorCodeTokenInvalid {
		t.Fatalf("expected token invalid code, got %q", richErr.TextCode)
	}

	_, err = h.svc.Claim(ctx, ClaimRequest{Token: "unknown", Identity: " "})
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input for missing identity, got %v", err)
	}
}

func TestServiceWithoutStoresFailsClosed(t *testing.T) {
	svc, err := NewService(DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Claim(context.Background(), ClaimRequest{Token: "t", Identity: "u"}); !stderrors.Is(err, ErrStoreNotConfigured) {
		t.Fatalf("expected store not configured, got %v", err)
	}
	decision := svc.ResolveEntitlement(context.Background(), "u", "studio")
	if decision.Allowed || decision.Reason != DenyReasonResolverUnavailable {
		t.Fatalf("expected resolver unavailable deny, got %#v", decision)
	}
}
