package invites

import (
	"fmt"

	invitescommand "github.com/goliatone/go-invites/command"
	"github.com/goliatone/go-invites/core"
	invitesquery "github.com/goliatone/go-invites/query"
)

type CommandQueryService interface {
	invitescommand.MutatingService
	invitesquery.TokenReader
	invitesquery.EntitlementReader
	invitesquery.ProfileReader
	invitesquery.GrantReader
}

var _ CommandQueryService = (*core.Service)(nil)

type Commands struct {
	Invite              *invitescommand.InviteCommand
	IssueToken          *invitescommand.IssueTokenCommand
	Claim               *invitescommand.ClaimCommand
	CreateGuestProfile  *invitescommand.CreateGuestProfileCommand
	AttachResource      *invitescommand.AttachResourceCommand
	TransitionProfile   *invitescommand.TransitionProfileCommand
	BindOwner           *invitescommand.BindOwnerCommand
	RefreshStudioAccess *invitescommand.RefreshStudioAccessCommand
	RecordGrant         *invitescommand.RecordGrantCommand
	GrantOverride       *invitescommand.GrantOverrideCommand
	RevokeGrant         *invitescommand.RevokeGrantCommand
}

type Queries struct {
	LookupToken        *invitesquery.LookupTokenQuery
	ResolveEntitlement *invitesquery.ResolveEntitlementQuery
	GetProfile         *invitesquery.GetProfileQuery
	ListResources      *invitesquery.ListResourcesQuery
	ListGrants         *invitesquery.ListGrantsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	entitlementReader invitesquery.EntitlementReader
}

// WithEntitlementReader answers entitlement queries from reader instead of
// the service, for hosts that front resolution with their own cache.
func WithEntitlementReader(reader invitesquery.EntitlementReader) FacadeOption {
	return func(options *facadeOptions) {
		options.entitlementReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("invites: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.entitlementReader
	if reader == nil {
		reader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Invite:              invitescommand.NewInviteCommand(service),
		IssueToken:          invitescommand.NewIssueTokenCommand(service),
		Claim:               invitescommand.NewClaimCommand(service),
		CreateGuestProfile:  invitescommand.NewCreateGuestProfileCommand(service),
		AttachResource:      invitescommand.NewAttachResourceCommand(service),
		TransitionProfile:   invitescommand.NewTransitionProfileCommand(service),
		BindOwner:           invitescommand.NewBindOwnerCommand(service),
		RefreshStudioAccess: invitescommand.NewRefreshStudioAccessCommand(service),
		RecordGrant:         invitescommand.NewRecordGrantCommand(service),
		GrantOverride:       invitescommand.NewGrantOverrideCommand(service),
		RevokeGrant:         invitescommand.NewRevokeGrantCommand(service),
	}
	facade.queries = Queries{
		LookupToken:        invitesquery.NewLookupTokenQuery(service),
		ResolveEntitlement: invitesquery.NewResolveEntitlementQuery(reader),
		GetProfile:         invitesquery.NewGetProfileQuery(service),
		ListResources:      invitesquery.NewListResourcesQuery(service),
		ListGrants:         invitesquery.NewListGrantsQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
