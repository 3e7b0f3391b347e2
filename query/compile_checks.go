package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-invites/core"
)

var (
	_ gocmd.Querier[LookupTokenMessage, core.InvitationToken]   = (*LookupTokenQuery)(nil)
	_ gocmd.Querier[ResolveEntitlementMessage, core.Decision]   = (*ResolveEntitlementQuery)(nil)
	_ gocmd.Querier[GetProfileMessage, core.Profile]            = (*GetProfileQuery)(nil)
	_ gocmd.Querier[ListResourcesMessage, []core.OwnedResource] = (*ListResourcesQuery)(nil)
	_ gocmd.Querier[ListGrantsMessage, []core.EntitlementGrant] = (*ListGrantsQuery)(nil)
)
