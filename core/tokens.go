package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type IssueTokenRequest struct {
	TargetResourceID string
	TTL              time.Duration
}

// IssueToken creates an issued token for an existing profile or owned
// resource. A non-positive TTL uses the configured default.
func (s *Service) IssueToken(ctx context.Context, req IssueTokenRequest) (token InvitationToken, err error) {
	startedAt := time.Now().UTC()
	target := strings.TrimSpace(req.TargetResourceID)
	fields := map[string]any{"target_resource_id": target}
	defer func() {
		if token.ID != "" {
			fields["token_id"] = token.ID
		}
		s.observeOperation(ctx, startedAt, "issue_token", err, fields)
	}()

	if err = s.requireStores("token", "profile", "resource"); err != nil {
		return InvitationToken{}, s.mapError(err)
	}
	profile, err := s.resolveTargetProfile(ctx, target)
	if err != nil {
		err = s.mapError(asResourceNotFound(err))
		return InvitationToken{}, err
	}
	if profile.Status == ProfileStatusDeleted {
		err = s.mapError(fmt.Errorf("%w: profile %s is deleted", ErrResourceNotFound, profile.ID))
		return InvitationToken{}, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.config.Tokens.DefaultTTL
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	fields["ttl"] = ttl.String()

	value, err := s.tokenGenerator.Generate()
	if err != nil {
		err = s.mapError(fmt.Errorf("core: generate token: %w", err))
		return InvitationToken{}, err
	}
	issuedAt := s.now()
	token, err = s.tokenStore.Create(ctx, IssueTokenInput{
		Token:            value,
		TargetResourceID: target,
		IssuedAt:         issuedAt,
		ExpiresAt:        issuedAt.Add(ttl),
	})
	if err != nil {
		err = s.mapError(err)
		return InvitationToken{}, err
	}
	return token, nil
}

// LookupToken returns the token with its effective status: an issued token
// past its expiry reads as expired without being written.
func (s *Service) LookupToken(ctx context.Context, value string) (InvitationToken, error) {
	if err := s.requireStores("token"); err != nil {
		return InvitationToken{}, s.mapError(err)
	}
	token, err := s.tokenStore.Lookup(ctx, strings.TrimSpace(value))
	if err != nil {
		return InvitationToken{}, s.mapError(err)
	}
	if token.Status == TokenStatusIssued && token.ExpiredAt(s.now()) {
		token.Status = TokenStatusExpired
	}
	return token, nil
}

func asResourceNotFound(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %v", ErrResourceNotFound, err)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrResourceNotFound)
}
