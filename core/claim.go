package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

var ErrIdentityRequired = errors.New("core: authenticated identity is required")

type ClaimOutcome string

const (
	ClaimOutcomeGranted              ClaimOutcome = "granted"
	ClaimOutcomeAlreadyOwnedByCaller ClaimOutcome = "already_owned_by_caller"
	ClaimOutcomeInvalid              ClaimOutcome = "invalid"
	ClaimOutcomeExpired              ClaimOutcome = "expired"
	ClaimOutcomeConsumedByOther      ClaimOutcome = "consumed_by_other"
	ClaimOutcomePartialFailure       ClaimOutcome = "partial_failure"
)

// Succeeded reports whether the caller owns the invited resources.
func (o ClaimOutcome) Succeeded() bool {
	return o == ClaimOutcomeGranted || o == ClaimOutcomeAlreadyOwnedByCaller
}

// Message is the text shown to the person following the link.
func (o ClaimOutcome) Message() string {
	switch o {
	case ClaimOutcomeGranted, ClaimOutcomeAlreadyOwnedByCaller:
		return "invitation accepted"
	case ClaimOutcomeInvalid:
		return "this invitation link is not valid"
	case ClaimOutcomeExpired:
		return "this invitation link has expired"
	case ClaimOutcomeConsumedByOther:
		return "this invitation link was already used"
	case ClaimOutcomePartialFailure:
		return "we could not finish setting up your account, please contact support"
	default:
		return "invitation could not be processed"
	}
}

type ClaimRequest struct {
	Token    string
	Identity string
}

type ClaimResult struct {
	Outcome          ClaimOutcome
	TokenID          string
	ProfileID        string
	OwnedResourceIDs []string
	StudioAccess     bool
	GrantID          string
}

const (
	defaultClaimSettleWait = 2 * time.Second
	defaultClaimSettlePoll = 50 * time.Millisecond
	// A consumed token still unsettled after this long lost its winner
	// before the transfer ended.
	claimStaleAfter = time.Minute
)

// maxClaimAttempts bounds the re-read after losing the consume gate. One
// re-read is enough because a lost gate means the row left the issued state.
const maxClaimAttempts = 2

// Claim binds an invitation token to identity and moves the invited profile
// to the caller. MarkConsumed is the only gate: every ownership side effect
// runs after this caller has won it.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (result ClaimResult, err error) {
	startedAt := time.Now().UTC()
	identity := strings.TrimSpace(req.Identity)
	tokenValue := strings.TrimSpace(req.Token)
	fields := map[string]any{
		"identity":          identity,
		"token_fingerprint": TokenFingerprint(tokenValue),
	}
	ctx, span := s.startSpan(ctx, "claim", attribute.String("invites.identity", identity))
	defer func() {
		if result.Outcome != "" {
			fields["outcome"] = string(result.Outcome)
			span.SetAttributes(attribute.String("invites.claim.outcome", string(result.Outcome)))
		}
		if result.TokenID != "" {
			fields["token_id"] = result.TokenID
		}
		if result.ProfileID != "" {
			fields["profile_id"] = result.ProfileID
		}
		endSpan(span, err)
		s.observeOperation(ctx, startedAt, "claim", err, fields)
	}()

	if err = s.requireStores("token", "profile", "resource", "grant"); err != nil {
		return ClaimResult{}, s.mapError(err)
	}
	if identity == "" {
		err = s.mapError(ErrIdentityRequired)
		return ClaimResult{}, err
	}
	if tokenValue == "" {
		return s.rejectClaim(ClaimResult{}, ClaimOutcomeInvalid, ErrTokenNotFound)
	}

	token, lookupErr := s.tokenStore.Lookup(ctx, tokenValue)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrTokenNotFound) {
			return s.rejectClaim(ClaimResult{}, ClaimOutcomeInvalid, lookupErr)
		}
		err = s.mapError(lookupErr)
		return ClaimResult{}, err
	}

	now := s.now()
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		current := ClaimResult{TokenID: token.ID}
		if token.ExpiredAt(now) {
			s.expireLazily(ctx, token, now)
			return s.rejectClaim(current, ClaimOutcomeExpired, ErrTokenExpired)
		}

		switch token.Status {
		case TokenStatusConsumed:
			if token.ConsumedBy == identity {
				return s.revisitClaim(ctx, token, identity)
			}
			return s.rejectClaim(current, ClaimOutcomeConsumedByOther, ErrTokenAlreadyConsumed)
		case TokenStatusIssued:
			consumed, markErr := s.tokenStore.MarkConsumed(ctx, token.Token, identity, now)
			if markErr == nil {
				// The gate is won: finish the transfer even if the caller
				// goes away, or the profile is left unbound for good.
				return s.completeClaim(context.WithoutCancel(ctx), consumed, identity, now)
			}
			switch {
			case errors.Is(markErr, ErrTokenAlreadyConsumed), errors.Is(markErr, ErrTokenExpired):
				reread, rereadErr := s.tokenStore.Lookup(ctx, token.Token)
				if rereadErr != nil {
					err = s.mapError(rereadErr)
					return current, err
				}
				token = reread
				continue
			case errors.Is(markErr, ErrTokenNotFound):
				return s.rejectClaim(current, ClaimOutcomeInvalid, markErr)
			default:
				err = s.mapError(markErr)
				return current, err
			}
		default:
			err = s.mapError(fmt.Errorf("core: token %s has unknown status %q", token.ID, token.Status))
			return current, err
		}
	}
	err = s.mapError(fmt.Errorf("core: token %s did not settle after %d attempts", token.ID, maxClaimAttempts))
	return ClaimResult{TokenID: token.ID}, err
}

func (s *Service) rejectClaim(result ClaimResult, outcome ClaimOutcome, cause error) (ClaimResult, error) {
	result.Outcome = outcome
	return result, s.mapError(newClaimError(outcome, cause))
}

// completeClaim runs only for the caller that won MarkConsumed. A failure here
// leaves the token consumed and surfaces a partial failure for an operator.
func (s *Service) completeClaim(ctx context.Context, token InvitationToken, identity string, now time.Time) (ClaimResult, error) {
	result := ClaimResult{TokenID: token.ID}

	profile, err := s.resolveTargetProfile(ctx, token.TargetResourceID)
	if err != nil {
		return s.claimPartialFailure(ctx, result, token, identity, "resolve target profile", err)
	}
	result.ProfileID = profile.ID

	profile, err = s.profileStore.BindOwner(ctx, profile.ID, identity)
	if err != nil {
		return s.claimPartialFailure(ctx, result, token, identity, "bind owner", err)
	}
	if profile.Status == ProfileStatusPending {
		profile, err = s.applyTransition(ctx, profile, ProfileStatusActive)
		if err != nil {
			return s.claimPartialFailure(ctx, result, token, identity, "activate profile", err)
		}
	} else if profile.Status != ProfileStatusActive {
		return s.claimPartialFailure(ctx, result, token, identity, "activate profile",
			fmt.Errorf("%w: %s -> %s", ErrInvalidProfileTransition, profile.Status, ProfileStatusActive))
	}

	grant, err := s.grantStore.Append(ctx, AppendGrantInput{
		SubjectIdentity: identity,
		ResourceRef:     StudioResourceRef,
		Source:          GrantSourceInvitationClaim,
		SourceRef:       token.ID,
		GrantedAt:       now,
		Metadata: map[string]any{
			"profile_id": profile.ID,
			"token_id":   token.ID,
		},
	})
	if err != nil {
		return s.claimPartialFailure(ctx, result, token, identity, "record studio grant", err)
	}
	result.GrantID = grant.ID

	if setErr := s.profileStore.SetStudioAccess(ctx, profile.ID, true); setErr != nil {
		s.logError(ctx, "claim studio access cache update failed", map[string]any{
			"profile_id": profile.ID,
			"identity":   identity,
			"error":      setErr.Error(),
		})
	}

	s.settleClaim(ctx, token, ClaimSettlementCompleted)

	result.Outcome = ClaimOutcomeGranted
	result.StudioAccess = true
	resourceIDs, err := s.ownedResourceIDs(ctx, profile.ID)
	if err != nil {
		return result, s.mapError(err)
	}
	result.OwnedResourceIDs = resourceIDs
	return result, nil
}

// revisitClaim answers the winning identity following its own link again. It
// never re-runs the transfer. A failure is reported only once the winner
// recorded it, or when the winner vanished without settling the claim.
func (s *Service) revisitClaim(ctx context.Context, token InvitationToken, identity string) (ClaimResult, error) {
	token = s.awaitClaimSettled(ctx, token)
	result := ClaimResult{TokenID: token.ID}

	profile, err := s.resolveTargetProfile(ctx, token.TargetResourceID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrResourceNotFound) {
			return s.rejectClaim(result, ClaimOutcomeInvalid, err)
		}
		return result, s.mapError(err)
	}
	result.ProfileID = profile.ID
	if profile.Status == ProfileStatusDeleted {
		return s.rejectClaim(result, ClaimOutcomeInvalid, ErrProfileDeleted)
	}

	transferred := profile.OwnerIdentity == identity && profile.Status != ProfileStatusPending
	switch {
	case token.ClaimFailedAt != nil:
		return s.reportUnfinishedClaim(result, token, profile)
	case token.ClaimCompletedAt != nil, transferred:
	case s.claimInFlight(token):
		// another request of this identity holds the gate and is still
		// moving the profile over
	default:
		return s.reportUnfinishedClaim(result, token, profile)
	}

	grants, err := s.grantStore.ListActive(ctx, identity)
	if err != nil {
		return result, s.mapError(err)
	}
	for _, grant := range grants {
		if grant.Source == GrantSourceInvitationClaim && grant.SourceRef == token.ID && grant.Active() {
			result.GrantID = grant.ID
			result.StudioAccess = true
			break
		}
	}

	resourceIDs, err := s.ownedResourceIDs(ctx, profile.ID)
	if err != nil {
		return result, s.mapError(err)
	}
	result.Outcome = ClaimOutcomeAlreadyOwnedByCaller
	result.OwnedResourceIDs = resourceIDs
	return result, nil
}

func (s *Service) reportUnfinishedClaim(result ClaimResult, token InvitationToken, profile Profile) (ClaimResult, error) {
	result.Outcome = ClaimOutcomePartialFailure
	return result, s.mapError(newClaimError(ClaimOutcomePartialFailure,
		fmt.Errorf("core: token %s consumed but profile %s was not transferred", token.ID, profile.ID)))
}

func (s *Service) claimInFlight(token InvitationToken) bool {
	if token.ClaimSettled() || token.ConsumedAt == nil {
		return false
	}
	return s.now().Sub(*token.ConsumedAt) < claimStaleAfter
}

// awaitClaimSettled re-reads an unsettled token until the winner settles it,
// the wait runs out or ctx ends. It returns the freshest row it saw.
func (s *Service) awaitClaimSettled(ctx context.Context, token InvitationToken) InvitationToken {
	if token.ClaimSettled() || s.claimSettleWait <= 0 {
		return token
	}
	deadline := time.NewTimer(s.claimSettleWait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.claimSettlePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return token
		case <-deadline.C:
			return token
		case <-ticker.C:
			reread, err := s.tokenStore.Lookup(ctx, token.Token)
			if err != nil {
				return token
			}
			token = reread
			if token.ClaimSettled() {
				return token
			}
		}
	}
}

func (s *Service) settleClaim(ctx context.Context, token InvitationToken, settlement ClaimSettlement) {
	if err := s.tokenStore.MarkClaimSettled(ctx, token.Token, settlement, s.now()); err != nil {
		s.logError(ctx, "claim settlement not recorded", map[string]any{
			"token_id":   token.ID,
			"settlement": string(settlement),
			"error":      err.Error(),
		})
	}
}

func (s *Service) claimPartialFailure(
	ctx context.Context,
	result ClaimResult,
	token InvitationToken,
	identity string,
	step string,
	cause error,
) (ClaimResult, error) {
	result.Outcome = ClaimOutcomePartialFailure
	s.settleClaim(ctx, token, ClaimSettlementFailed)
	alert := ClaimAlert{
		TokenID:          token.ID,
		TargetResourceID: token.TargetResourceID,
		Identity:         identity,
		ProfileID:        result.ProfileID,
		Reason:           step + ": " + cause.Error(),
		OccurredAt:       s.now(),
	}
	if s.alertSink != nil {
		if alertErr := s.alertSink.ClaimPartialFailure(ctx, alert); alertErr != nil {
			s.logError(ctx, "claim partial failure alert not delivered", map[string]any{
				"token_id":   token.ID,
				"profile_id": result.ProfileID,
				"identity":   identity,
				"error":      alertErr.Error(),
			})
		}
	}
	return result, s.mapError(newClaimError(ClaimOutcomePartialFailure, fmt.Errorf("%s: %w", step, cause)))
}

func (s *Service) expireLazily(ctx context.Context, token InvitationToken, now time.Time) {
	if token.Status != TokenStatusIssued {
		return
	}
	if err := s.tokenStore.MarkExpired(ctx, token.Token, now); err != nil && !errors.Is(err, ErrTokenAlreadyConsumed) {
		s.logError(ctx, "token expiry not persisted", map[string]any{
			"token_id": token.ID,
			"error":    err.Error(),
		})
	}
}

// resolveTargetProfile accepts either a profile id or the id of a resource
// owned by the profile.
func (s *Service) resolveTargetProfile(ctx context.Context, targetID string) (Profile, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return Profile{}, ErrResourceNotFound
	}
	profile, err := s.profileStore.Get(ctx, targetID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return Profile{}, err
	}
	resource, err := s.resourceStore.Get(ctx, targetID)
	if err != nil {
		return Profile{}, err
	}
	return s.profileStore.Get(ctx, resource.ProfileID)
}

func (s *Service) ownedResourceIDs(ctx context.Context, profileID string) ([]string, error) {
	resources, err := s.resourceStore.ListByProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resources))
	for _, resource := range resources {
		ids = append(ids, resource.ResourceID)
	}
	return ids, nil
}
