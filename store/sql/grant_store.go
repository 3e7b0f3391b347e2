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

// GrantStore keeps entitlement grants append-only: rows are inserted once and
// only revoked_at and revocation_reason are ever written afterwards.
type GrantStore struct {
	db   *bun.DB
	repo repository.Repository[*entitlementGrantRecord]
}

func NewGrantStore(db *bun.DB) (*GrantStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*entitlementGrantRecord](db, entitlementGrantHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid entitlement grant repository wiring: %w", err)
		}
	}
	return &GrantStore{db: db, repo: repo}, nil
}

// Append inserts a grant unless an active grant with the same subject,
// resource ref, source and source ref exists, in which case that row is
// returned. The partial unique index on active grants arbitrates races.
func (s *GrantStore) Append(ctx context.Context, in core.AppendGrantInput) (core.EntitlementGrant, error) {
	if s == nil || s.db == nil {
		return core.EntitlementGrant{}, fmt.Errorf("sqlstore: grant store is not configured")
	}
	in.SubjectIdentity = strings.TrimSpace(in.SubjectIdentity)
	in.ResourceRef = core.NormalizeResourceRef(in.ResourceRef)
	in.SourceRef = strings.TrimSpace(in.SourceRef)
	if in.SubjectIdentity == "" || in.ResourceRef == "" {
		return core.EntitlementGrant{}, fmt.Errorf("sqlstore: grant subject and resource ref are required")
	}
	if !in.Source.Valid() {
		return core.EntitlementGrant{}, fmt.Errorf("sqlstore: unsupported grant source %q", in.Source)
	}
	if in.GrantedAt.IsZero() {
		in.GrantedAt = time.Now().UTC()
	}

	record := newEntitlementGrantRecord(uuid.NewString(), in)
	if _, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT DO NOTHING").
		Exec(ctx); err != nil {
		return core.EntitlementGrant{}, err
	}

	active := &entitlementGrantRecord{}
	err := s.db.NewSelect().
		Model(active).
		Where("?TableAlias.subject_identity = ?", in.SubjectIdentity).
		Where("?TableAlias.resource_ref = ?", in.ResourceRef).
		Where("?TableAlias.source = ?", string(in.Source)).
		Where("?TableAlias.source_ref = ?", in.SourceRef).
		Where("?TableAlias.revoked_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.EntitlementGrant{}, err
	}
	return active.toDomain(), nil
}

func (s *GrantStore) Revoke(ctx context.Context, id string, reason string, at time.Time) (core.EntitlementGrant, error) {
	if s == nil || s.db == nil {
		return core.EntitlementGrant{}, fmt.Errorf("sqlstore: grant store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*entitlementGrantRecord)(nil)).
		Set("revoked_at = ?", at.UTC()).
		Set("revocation_reason = ?", strings.TrimSpace(reason)).
		Where("id = ?", id).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return core.EntitlementGrant{}, err
	}
	affected, _ := res.RowsAffected()

	record, err := s.find(ctx, id)
	if err != nil {
		return core.EntitlementGrant{}, err
	}
	if affected == 0 {
		return core.EntitlementGrant{}, fmt.Errorf("%w: grant %s", core.ErrGrantAlreadyRevoked, id)
	}
	return record.toDomain(), nil
}

func (s *GrantStore) Get(ctx context.Context, id string) (core.EntitlementGrant, error) {
	if s == nil || s.db == nil {
		return core.EntitlementGrant{}, fmt.Errorf("sqlstore: grant store is not configured")
	}
	record, err := s.find(ctx, id)
	if err != nil {
		return core.EntitlementGrant{}, err
	}
	return record.toDomain(), nil
}

func (s *GrantStore) ListActive(ctx context.Context, subject string) ([]core.EntitlementGrant, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: grant store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("subject_identity", "=", strings.TrimSpace(subject)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.revoked_at IS NULL")
		}),
		repository.OrderBy("granted_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return grantsToDomain(records), nil
}

func (s *GrantStore) ListBySubject(ctx context.Context, subject string) ([]core.EntitlementGrant, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: grant store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("subject_identity", "=", strings.TrimSpace(subject)),
		repository.OrderBy("granted_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return grantsToDomain(records), nil
}

func (s *GrantStore) find(ctx context.Context, id string) (*entitlementGrantRecord, error) {
	record := &entitlementGrantRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: id %q", core.ErrGrantNotFound, id)
		}
		return nil, err
	}
	return record, nil
}
