package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-invites/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const activeGrantsCacheKeyPrefix = "go-invites::active_grants::v1"

// CachedGrantStore fronts ListActive with a short-lived read-through cache.
// Writes go to the base store and then drop the subject's cache entry.
type CachedGrantStore struct {
	base  core.GrantStore
	cache repositorycache.CacheService
}

func NewCachedGrantStore(base core.GrantStore, cacheService repositorycache.CacheService) (*CachedGrantStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base grant store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: grant cache service is required")
	}
	return &CachedGrantStore{base: base, cache: cacheService}, nil
}

// NewGrantCacheService builds the in-process cache used by CachedGrantStore.
func NewGrantCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

// ActiveGrantsCacheKey returns go-invites::active_grants::v1::<subject> with
// the subject URL-path escaped.
func ActiveGrantsCacheKey(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("sqlstore: grant subject is required")
	}
	return activeGrantsCacheKeyPrefix + "::" + url.PathEscape(subject), nil
}

func (s *CachedGrantStore) Append(ctx context.Context, in core.AppendGrantInput) (core.EntitlementGrant, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.EntitlementGrant{}, fmt.Errorf("sqlstore: cached grant store is not configured")
	}
	grant, err := s.base.Append(ctx, in)
	if err != nil {
		return core.EntitlementGrant{}, err
	}
	if err := s.invalidate(ctx, grant.SubjectIdentity); err != nil {
		return core.EntitlementGrant{}, err
	}
	return grant, nil
}

func (s *CachedGrantStore) Revoke(ctx context.Context, id string, reason string, at time.Time) (core.EntitlementGrant, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.EntitlementGrant{}, fmt.Errorf("sqlstore: cached grant store is not configured")
	}
	grant, err := s.base.Revoke(ctx, id, reason, at)
	if err != nil {
		return core.EntitlementGrant{}, err
	}
	if err := s.invalidate(ctx, grant.SubjectIdentity); err != nil {
		return core.EntitlementGrant{}, err
	}
	return grant, nil
}

func (s *CachedGrantStore) Get(ctx context.Context, id string) (core.EntitlementGrant, error) {
	if s == nil || s.base == nil {
		return core.EntitlementGrant{}, fmt.Errorf("sqlstore: cached grant store is not configured")
	}
	return s.base.Get(ctx, id)
}

func (s *CachedGrantStore) ListActive(ctx context.Context, subject string) ([]core.EntitlementGrant, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached grant store is not configured")
	}
	subject = strings.TrimSpace(subject)
	cacheKey, err := ActiveGrantsCacheKey(subject)
	if err != nil {
		return nil, err
	}
	grants, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.EntitlementGrant, error) {
		fetched, fetchErr := s.base.ListActive(ctx, subject)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneGrants(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneGrants(grants), nil
}

func (s *CachedGrantStore) ListBySubject(ctx context.Context, subject string) ([]core.EntitlementGrant, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached grant store is not configured")
	}
	return s.base.ListBySubject(ctx, subject)
}

func (s *CachedGrantStore) invalidate(ctx context.Context, subject string) error {
	cacheKey, err := ActiveGrantsCacheKey(subject)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneGrants(grants []core.EntitlementGrant) []core.EntitlementGrant {
	out := make([]core.EntitlementGrant, 0, len(grants))
	for _, grant := range grants {
		cloned := grant
		cloned.RevokedAt = cloneTimePointer(grant.RevokedAt)
		cloned.Metadata = copyAnyMap(grant.Metadata)
		out = append(out, cloned)
	}
	return out
}
