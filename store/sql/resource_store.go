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

type ResourceStore struct {
	db   *bun.DB
	repo repository.Repository[*ownedResourceRecord]
}

func NewResourceStore(db *bun.DB) (*ResourceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ownedResourceRecord](db, ownedResourceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid owned resource repository wiring: %w", err)
		}
	}
	return &ResourceStore{db: db, repo: repo}, nil
}

// Create inserts the resource only while its profile exists and is not
// deleted, so a concurrent purge cannot leave an orphaned row behind.
func (s *ResourceStore) Create(ctx context.Context, in core.CreateResourceInput) (core.OwnedResource, error) {
	if s == nil || s.db == nil {
		return core.OwnedResource{}, fmt.Errorf("sqlstore: resource store is not configured")
	}
	profileID := strings.TrimSpace(in.ProfileID)
	if profileID == "" {
		return core.OwnedResource{}, fmt.Errorf("sqlstore: profile id is required")
	}
	record := &ownedResourceRecord{
		ResourceID: uuid.NewString(),
		ProfileID:  profileID,
		Kind:       string(in.Kind),
		CreatedAt:  time.Now().UTC(),
	}

	res, err := s.db.NewRaw(
		"INSERT INTO owned_resources (resource_id, profile_id, kind, created_at) "+
			"SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM profiles WHERE id = ? AND status <> ?)",
		record.ResourceID, record.ProfileID, record.Kind, record.CreatedAt,
		profileID, string(core.ProfileStatusDeleted),
	).Exec(ctx)
	if err != nil {
		return core.OwnedResource{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, findErr := findProfile(ctx, s.db, profileID); findErr != nil {
			return core.OwnedResource{}, findErr
		}
		return core.OwnedResource{}, fmt.Errorf("%w: profile %s", core.ErrProfileDeleted, profileID)
	}
	return record.toDomain(), nil
}

func (s *ResourceStore) Get(ctx context.Context, resourceID string) (core.OwnedResource, error) {
	if s == nil || s.db == nil {
		return core.OwnedResource{}, fmt.Errorf("sqlstore: resource store is not configured")
	}
	record := &ownedResourceRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.resource_id = ?", strings.TrimSpace(resourceID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.OwnedResource{}, fmt.Errorf("%w: id %q", core.ErrResourceNotFound, resourceID)
		}
		return core.OwnedResource{}, err
	}
	return record.toDomain(), nil
}

func (s *ResourceStore) ListByProfile(ctx context.Context, profileID string) ([]core.OwnedResource, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: resource store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("profile_id", "=", strings.TrimSpace(profileID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.OwnedResource, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
