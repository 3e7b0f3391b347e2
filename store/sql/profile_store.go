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

type ProfileStore struct {
	db   *bun.DB
	repo repository.Repository[*profileRecord]
}

func NewProfileStore(db *bun.DB) (*ProfileStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*profileRecord](db, profileHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid profile repository wiring: %w", err)
		}
	}
	return &ProfileStore{db: db, repo: repo}, nil
}

func (s *ProfileStore) Create(ctx context.Context, in core.CreateProfileInput) (core.Profile, error) {
	if s == nil || s.repo == nil {
		return core.Profile{}, fmt.Errorf("sqlstore: profile store is not configured")
	}
	created, err := s.repo.Create(ctx, newProfileRecord(uuid.NewString(), in, time.Now().UTC()))
	if err != nil {
		return core.Profile{}, err
	}
	return created.toDomain(), nil
}

func (s *ProfileStore) Get(ctx context.Context, id string) (core.Profile, error) {
	if s == nil || s.db == nil {
		return core.Profile{}, fmt.Errorf("sqlstore: profile store is not configured")
	}
	record, err := findProfile(ctx, s.db, id)
	if err != nil {
		return core.Profile{}, err
	}
	return record.toDomain(), nil
}

// BindOwner sets owner_identity only while it is still empty. A repeat by the
// same identity is a no-op.
func (s *ProfileStore) BindOwner(ctx context.Context, id string, identity string) (core.Profile, error) {
	if s == nil || s.db == nil {
		return core.Profile{}, fmt.Errorf("sqlstore: profile store is not configured")
	}
	id = strings.TrimSpace(id)
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return core.Profile{}, fmt.Errorf("sqlstore: owner identity is required")
	}

	if _, err := s.db.NewUpdate().
		Model((*profileRecord)(nil)).
		Set("owner_identity = ?", identity).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("owner_identity IS NULL").
		Exec(ctx); err != nil {
		return core.Profile{}, err
	}

	record, err := findProfile(ctx, s.db, id)
	if err != nil {
		return core.Profile{}, err
	}
	if record.OwnerIdentity == nil || *record.OwnerIdentity != identity {
		return core.Profile{}, fmt.Errorf("%w: profile %s", core.ErrOwnerMismatch, id)
	}
	return record.toDomain(), nil
}

// UpdateStatus moves a profile from one status to the next with a
// conditional write on the current status. Deleting a profile removes its
// owned resources in the same transaction.
func (s *ProfileStore) UpdateStatus(ctx context.Context, id string, from core.ProfileStatus, to core.ProfileStatus) (core.Profile, error) {
	if s == nil || s.db == nil {
		return core.Profile{}, fmt.Errorf("sqlstore: profile store is not configured")
	}
	id = strings.TrimSpace(id)

	var updated core.Profile
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := tx.NewUpdate().
			Model((*profileRecord)(nil)).
			Set("status = ?", string(to)).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Where("status = ?", string(from))
		if from == core.ProfileStatusPending && to == core.ProfileStatusActive {
			query = query.Set("kind = ?", string(core.ProfileKindMember))
		}
		res, updateErr := query.Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		affected, _ := res.RowsAffected()

		record, findErr := findProfile(ctx, tx, id)
		if findErr != nil {
			return findErr
		}
		if affected == 0 {
			return fmt.Errorf("%w: profile %s is %s", core.ErrInvalidProfileTransition, id, record.Status)
		}

		if to == core.ProfileStatusDeleted {
			if _, deleteErr := tx.NewDelete().
				Model((*ownedResourceRecord)(nil)).
				Where("profile_id = ?", id).
				Exec(ctx); deleteErr != nil {
				return deleteErr
			}
		}
		updated = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Profile{}, err
	}
	return updated, nil
}

func (s *ProfileStore) SetStudioAccess(ctx context.Context, id string, enabled bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: profile store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*profileRecord)(nil)).
		Set("studio_access = ?", enabled).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: id %q", core.ErrProfileNotFound, id)
	}
	return nil
}

func (s *ProfileStore) FindByOwner(ctx context.Context, identity string) ([]core.Profile, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: profile store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("owner_identity", "=", strings.TrimSpace(identity)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Profile, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findProfile(ctx context.Context, db bun.IDB, id string) (*profileRecord, error) {
	record := &profileRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: id %q", core.ErrProfileNotFound, id)
		}
		return nil, err
	}
	return record, nil
}
