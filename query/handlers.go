package query

import (
	"context"

	"github.com/goliatone/go-invites/core"
)

type TokenReader interface {
	LookupToken(ctx context.Context, token string) (core.InvitationToken, error)
}

type EntitlementReader interface {
	ResolveEntitlement(ctx context.Context, identity string, resourceRef string) core.Decision
}

type ProfileReader interface {
	GetProfile(ctx context.Context, profileID string) (core.Profile, error)
	ListResources(ctx context.Context, profileID string) ([]core.OwnedResource, error)
}

type GrantReader interface {
	ListGrants(ctx context.Context, req core.ListGrantsRequest) ([]core.EntitlementGrant, error)
}

type LookupTokenQuery struct {
	reader TokenReader
}

func NewLookupTokenQuery(reader TokenReader) *LookupTokenQuery {
	return &LookupTokenQuery{reader: reader}
}

func (q *LookupTokenQuery) Query(ctx context.Context, msg LookupTokenMessage) (core.InvitationToken, error) {
	if q == nil || q.reader == nil {
		return core.InvitationToken{}, queryDependencyError("query: token reader is required")
	}
	return q.reader.LookupToken(ctx, msg.Token)
}

type ResolveEntitlementQuery struct {
	reader EntitlementReader
}

func NewResolveEntitlementQuery(reader EntitlementReader) *ResolveEntitlementQuery {
	return &ResolveEntitlementQuery{reader: reader}
}

// Query never fails on resolver problems; those surface as a deny decision.
// Only a missing reader is reported as an error.
func (q *ResolveEntitlementQuery) Query(ctx context.Context, msg ResolveEntitlementMessage) (core.Decision, error) {
	if q == nil || q.reader == nil {
		return core.Decision{
			Allowed:     false,
			Reason:      core.DenyReasonResolverUnavailable,
			ResourceRef: msg.ResourceRef,
		}, queryDependencyError("query: entitlement reader is required")
	}
	return q.reader.ResolveEntitlement(ctx, msg.Identity, msg.ResourceRef), nil
}

type GetProfileQuery struct {
	reader ProfileReader
}

func NewGetProfileQuery(reader ProfileReader) *GetProfileQuery {
	return &GetProfileQuery{reader: reader}
}

func (q *GetProfileQuery) Query(ctx context.Context, msg GetProfileMessage) (core.Profile, error) {
	if q == nil || q.reader == nil {
		return core.Profile{}, queryDependencyError("query: profile reader is required")
	}
	return q.reader.GetProfile(ctx, msg.ProfileID)
}

type ListResourcesQuery struct {
	reader ProfileReader
}

func NewListResourcesQuery(reader ProfileReader) *ListResourcesQuery {
	return &ListResourcesQuery{reader: reader}
}

func (q *ListResourcesQuery) Query(ctx context.Context, msg ListResourcesMessage) ([]core.OwnedResource, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: profile reader is required")
	}
	return q.reader.ListResources(ctx, msg.ProfileID)
}

type ListGrantsQuery struct {
	reader GrantReader
}

func NewListGrantsQuery(reader GrantReader) *ListGrantsQuery {
	return &ListGrantsQuery{reader: reader}
}

func (q *ListGrantsQuery) Query(ctx context.Context, msg ListGrantsMessage) ([]core.EntitlementGrant, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: grant reader is required")
	}
	return q.reader.ListGrants(ctx, core.ListGrantsRequest{
		SubjectIdentity: msg.SubjectIdentity,
		IncludeRevoked:  msg.IncludeRevoked,
	})
}
