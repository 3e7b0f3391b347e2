package core

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InviteRequest struct {
	DisplayName   string
	ResourceKinds []ResourceKind
	TTL           time.Duration
}

type InviteResult struct {
	Profile   Profile
	Resources []OwnedResource
	Token     InvitationToken
}

// Invite seeds a guest profile with its resources and issues the token that
// will later transfer them to a real account. Without explicit kinds the
// guest gets a wardrobe.
func (s *Service) Invite(ctx context.Context, req InviteRequest) (result InviteResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		if result.Profile.ID != "" {
			fields["profile_id"] = result.Profile.ID
		}
		if result.Token.ID != "" {
			fields["token_id"] = result.Token.ID
		}
		fields["resource_count"] = len(result.Resources)
		s.observeOperation(ctx, startedAt, "invite", err, fields)
	}()

	kinds := req.ResourceKinds
	if len(kinds) == 0 {
		kinds = []ResourceKind{ResourceKindWardrobe}
	}
	for _, kind := range kinds {
		if !kind.Valid() {
			err = goerrors.NewValidation("invalid invite", goerrors.FieldError{
				Field:   "resource_kinds",
				Message: "unknown resource kind",
				Value:   string(kind),
			}).WithTextCode(ErrorCodeBadInput)
			return InviteResult{}, err
		}
	}

	profile, err := s.CreateGuestProfile(ctx, CreateGuestProfileRequest{
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		return InviteResult{}, err
	}
	result.Profile = profile

	for _, kind := range kinds {
		resource, attachErr := s.AttachResource(ctx, AttachResourceRequest{
			ProfileID: profile.ID,
			Kind:      kind,
		})
		if attachErr != nil {
			err = attachErr
			return result, err
		}
		result.Resources = append(result.Resources, resource)
	}

	token, err := s.IssueToken(ctx, IssueTokenRequest{
		TargetResourceID: profile.ID,
		TTL:              req.TTL,
	})
	if err != nil {
		return result, err
	}
	result.Token = token
	return result, nil
}
