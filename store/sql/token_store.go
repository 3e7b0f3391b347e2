package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-invites/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type TokenStore struct {
	db   *bun.DB
	repo repository.Repository[*invitationTokenRecord]
}

func NewTokenStore(db *bun.DB) (*TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*invitationTokenRecord](db, invitationTokenHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid invitation token repository wiring: %w", err)
		}
	}
	return &TokenStore{db: db, repo: repo}, nil
}

func (s *TokenStore) Create(ctx context.Context, in core.IssueTokenInput) (core.InvitationToken, error) {
	if s == nil || s.repo == nil {
		return core.InvitationToken{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	if strings.TrimSpace(in.Token) == "" {
		return core.InvitationToken{}, fmt.Errorf("sqlstore: token value is required")
	}
	if strings.TrimSpace(in.TargetResourceID) == "" {
		return core.InvitationToken{}, fmt.Errorf("sqlstore: target resource id is required")
	}
	if !in.ExpiresAt.After(in.IssuedAt) {
		return core.InvitationToken{}, fmt.Errorf("sqlstore: token must expire after it is issued")
	}

	created, err := s.repo.Create(ctx, newInvitationTokenRecord(uuid.NewString(), in))
	if err != nil {
		if isUniqueViolation(err) {
			return core.InvitationToken{}, fmt.Errorf("sqlstore: token value already issued: %w", err)
		}
		return core.InvitationToken{}, err
	}
	return created.toDomain(), nil
}

func (s *TokenStore) Lookup(ctx context.Context, token string) (core.InvitationToken, error) {
	if s == nil || s.db == nil {
		return core.InvitationToken{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	record, err := s.find(ctx, s.db, token)
	if err != nil {
		return core.InvitationToken{}, err
	}
	return record.toDomain(), nil
}

// MarkConsumed is the claim gate. The update only matches an issued,
// unexpired row, so among concurrent callers exactly one sees a row affected.
// Losers re-read the row to classify why they lost.
func (s *TokenStore) MarkConsumed(ctx context.Context, token string, identity string, now time.Time) (core.InvitationToken, error) {
	if s == nil || s.db == nil {
		return core.InvitationToken{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	token = strings.TrimSpace(token)
	identity = strings.TrimSpace(identity)
	if token == "" || identity == "" {
		return core.InvitationToken{}, fmt.Errorf("sqlstore: token and identity are required")
	}
	now = now.UTC()

	res, err := s.db.NewUpdate().
		Model((*invitationTokenRecord)(nil)).
		Set("status = ?", string(core.TokenStatusConsumed)).
		Set("consumed_by = ?", identity).
		Set("consumed_at = ?", now).
		Where("token = ?", token).
		Where("status = ?", string(core.TokenStatusIssued)).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return core.InvitationToken{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.InvitationToken{}, err
	}

	record, err := s.find(ctx, s.db, token)
	if err != nil {
		return core.InvitationToken{}, err
	}
	if affected == 1 {
		return record.toDomain(), nil
	}
	switch core.TokenStatus(record.Status) {
	case core.TokenStatusConsumed:
		return core.InvitationToken{}, fmt.Errorf("%w: token %s", core.ErrTokenAlreadyConsumed, record.ID)
	default:
		return core.InvitationToken{}, fmt.Errorf("%w: token %s", core.ErrTokenExpired, record.ID)
	}
}

func (s *TokenStore) MarkExpired(ctx context.Context, token string, now time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	token = strings.TrimSpace(token)
	res, err := s.db.NewUpdate().
		Model((*invitationTokenRecord)(nil)).
		Set("status = ?", string(core.TokenStatusExpired)).
		Where("token = ?", token).
		Where("status = ?", string(core.TokenStatusIssued)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, findErr := s.find(ctx, s.db, token); findErr != nil {
			return findErr
		}
	}
	return nil
}

// MarkClaimSettled stamps claim_completed_at or claim_failed_at on a consumed
// token. A token that is already settled keeps its first settlement.
func (s *TokenStore) MarkClaimSettled(ctx context.Context, token string, settlement core.ClaimSettlement, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	if !settlement.Valid() {
		return fmt.Errorf("sqlstore: unsupported claim settlement %q", settlement)
	}
	column := "claim_completed_at"
	if settlement == core.ClaimSettlementFailed {
		column = "claim_failed_at"
	}
	token = strings.TrimSpace(token)
	res, err := s.db.NewUpdate().
		Model((*invitationTokenRecord)(nil)).
		Set("? = ?", bun.Ident(column), at.UTC()).
		Where("token = ?", token).
		Where("status = ?", string(core.TokenStatusConsumed)).
		Where("claim_completed_at IS NULL").
		Where("claim_failed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, findErr := s.find(ctx, s.db, token); findErr != nil {
			return findErr
		}
	}
	return nil
}

func (s *TokenStore) find(ctx context.Context, db bun.IDB, token string) (*invitationTokenRecord, error) {
	record := &invitationTokenRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", strings.TrimSpace(token)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrTokenNotFound
		}
		return nil, err
	}
	return record, nil
}
