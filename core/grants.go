package core

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type RecordGrantRequest struct {
	SubjectIdentity string
	ResourceRef     string
	Source          GrantSource
	SourceRef       string
	Metadata        map[string]any
}

type GrantOverrideRequest struct {
	SubjectIdentity string
	ResourceRef     string
	Actor           string
	Reason          string
}

type RevokeGrantRequest struct {
	GrantID string
	Reason  string
}

type ListGrantsRequest struct {
	SubjectIdentity string
	IncludeRevoked  bool
}

// RecordGrant appends a commerce grant. Only direct purchases and bundled
// offers come through here: overrides have their own entry point and claim
// grants are written by Claim alone.
func (s *Service) RecordGrant(ctx context.Context, req RecordGrantRequest) (grant EntitlementGrant, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"identity":     req.SubjectIdentity,
		"resource_ref": req.ResourceRef,
		"source":       string(req.Source),
	}
	defer func() {
		if grant.ID != "" {
			fields["grant_id"] = grant.ID
		}
		s.observeOperation(ctx, startedAt, "record_grant", err, fields)
	}()

	switch req.Source {
	case GrantSourceDirectPurchase, GrantSourceBundledOffer:
	case GrantSourceAdminOverride, GrantSourceInvitationClaim:
		err = s.mapError(ErrReservedGrantSource)
		return EntitlementGrant{}, err
	default:
		err = goerrors.NewValidation("invalid grant", goerrors.FieldError{
			Field:   "source",
			Message: "must be direct_purchase or bundled_offer",
		}).WithTextCode(ErrorCodeBadInput)
		return EntitlementGrant{}, err
	}
	if req.Source == GrantSourceBundledOffer && !s.bundles.Known(req.ResourceRef) {
		err = goerrors.NewValidation("invalid grant", goerrors.FieldError{
			Field:   "resource_ref",
			Message: "unknown bundled offer",
		}).WithTextCode(ErrorCodeBadInput)
		return EntitlementGrant{}, err
	}
	grant, err = s.appendGrant(ctx, AppendGrantInput{
		SubjectIdentity: req.SubjectIdentity,
		ResourceRef:     req.ResourceRef,
		Source:          req.Source,
		SourceRef:       req.SourceRef,
		Metadata:        req.Metadata,
	})
	return grant, err
}

// GrantOverride forces access for support and debugging, bypassing claim
// and purchase state.
func (s *Service) GrantOverride(ctx context.Context, req GrantOverrideRequest) (grant EntitlementGrant, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"identity":     req.SubjectIdentity,
		"resource_ref": req.ResourceRef,
		"source":       string(GrantSourceAdminOverride),
		"actor":        req.Actor,
	}
	defer func() {
		if grant.ID != "" {
			fields["grant_id"] = grant.ID
		}
		s.observeOperation(ctx, startedAt, "grant_override", err, fields)
	}()

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		err = goerrors.NewValidation("invalid override", goerrors.FieldError{
			Field:   "actor",
			Message: "is required",
		}).WithTextCode(ErrorCodeBadInput)
		return EntitlementGrant{}, err
	}
	metadata := map[string]any{"actor": actor}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		metadata["reason"] = reason
	}
	grant, err = s.appendGrant(ctx, AppendGrantInput{
		SubjectIdentity: req.SubjectIdentity,
		ResourceRef:     req.ResourceRef,
		Source:          GrantSourceAdminOverride,
		SourceRef:       actor,
		Metadata:        metadata,
	})
	return grant, err
}

func (s *Service) appendGrant(ctx context.Context, in AppendGrantInput) (EntitlementGrant, error) {
	if err := s.requireStores("grant"); err != nil {
		return EntitlementGrant{}, s.mapError(err)
	}
	in.SubjectIdentity = strings.TrimSpace(in.SubjectIdentity)
	in.ResourceRef = NormalizeResourceRef(in.ResourceRef)
	in.SourceRef = strings.TrimSpace(in.SourceRef)
	if err := validateGrantInput(in); err != nil {
		return EntitlementGrant{}, err
	}
	if in.GrantedAt.IsZero() {
		in.GrantedAt = s.now()
	}
	grant, err := s.grantStore.Append(ctx, in)
	if err != nil {
		return EntitlementGrant{}, s.mapError(err)
	}
	s.refreshStudioAfterGrantChange(ctx, grant)
	return grant, nil
}

func validateGrantInput(in AppendGrantInput) error {
	var fieldErrors []goerrors.FieldError
	if in.SubjectIdentity == "" {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "subject_identity", Message: "is required"})
	}
	if in.ResourceRef == "" {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "resource_ref", Message: "is required"})
	}
	if !in.Source.Valid() {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "source", Message: "is not a known grant source"})
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return goerrors.NewValidation("invalid grant", fieldErrors...).WithTextCode(ErrorCodeBadInput)
}

// RevokeGrant stamps revoked_at on an active grant. Grants are never deleted.
func (s *Service) RevokeGrant(ctx context.Context, req RevokeGrantRequest) (grant EntitlementGrant, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"grant_id":          req.GrantID,
		"revocation_reason": req.Reason,
	}
	defer func() {
		if grant.ID != "" {
			fields["source"] = string(grant.Source)
			fields["identity"] = grant.SubjectIdentity
		}
		s.observeOperation(ctx, startedAt, "revoke_grant", err, fields)
	}()

	if err = s.requireStores("grant"); err != nil {
		return EntitlementGrant{}, s.mapError(err)
	}
	grantID := strings.TrimSpace(req.GrantID)
	if grantID == "" {
		err = goerrors.NewValidation("invalid revocation", goerrors.FieldError{
			Field:   "grant_id",
			Message: "is required",
		}).WithTextCode(ErrorCodeBadInput)
		return EntitlementGrant{}, err
	}
	grant, err = s.grantStore.Revoke(ctx, grantID, strings.TrimSpace(req.Reason), s.now())
	if err != nil {
		err = s.mapError(err)
		return EntitlementGrant{}, err
	}
	s.refreshStudioAfterGrantChange(ctx, grant)
	return grant, nil
}

func (s *Service) ListGrants(ctx context.Context, req ListGrantsRequest) ([]EntitlementGrant, error) {
	if err := s.requireStores("grant"); err != nil {
		return nil, s.mapError(err)
	}
	subject := strings.TrimSpace(req.SubjectIdentity)
	if subject == "" {
		return nil, s.mapError(ErrIdentityRequired)
	}
	var (
		grants []EntitlementGrant
		err    error
	)
	if req.IncludeRevoked {
		grants, err = s.grantStore.ListBySubject(ctx, subject)
	} else {
		grants, err = s.grantStore.ListActive(ctx, subject)
	}
	if err != nil {
		return nil, s.mapError(err)
	}
	return grants, nil
}

// refreshStudioAfterGrantChange keeps the cached studio flag in step with
// grants touching the studio tier. Failures are logged; the resolver reads
// grants directly so access checks stay correct.
func (s *Service) refreshStudioAfterGrantChange(ctx context.Context, grant EntitlementGrant) {
	if s.profileStore == nil {
		return
	}
	if grant.Source != GrantSourceBundledOffer && !IsStudioTier(grant.ResourceRef) {
		return
	}
	if _, err := s.RefreshStudioAccess(ctx, grant.SubjectIdentity); err != nil {
		s.logError(ctx, "studio access refresh failed", map[string]any{
			"identity": grant.SubjectIdentity,
			"grant_id": grant.ID,
			"error":    err.Error(),
		})
	}
}
