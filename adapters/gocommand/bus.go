package gocommand

import (
	"context"
	"fmt"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	invites "github.com/goliatone/go-invites"
	invitescommand "github.com/goliatone/go-invites/command"
	"github.com/goliatone/go-invites/core"
	invitesquery "github.com/goliatone/go-invites/query"
)

// InvitationBus registers the facade's handlers with the registry and the
// process-wide dispatcher. Close drops the dispatcher subscriptions.
type InvitationBus struct {
	adapter       *RegistryAdapter
	subscriptions []commanddispatcher.Subscription
}

func NewInvitationBus(adapter *RegistryAdapter, facade *invites.Facade) (*InvitationBus, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if facade == nil {
		return nil, fmt.Errorf("gocommand: invitation facade is required")
	}
	bus := &InvitationBus{adapter: adapter}
	commands := facade.Commands()
	queries := facade.Queries()

	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) { return RegisterAndSubscribe(adapter, commands.Invite) },
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.IssueToken)
		},
		func() (commanddispatcher.Subscription, error) { return RegisterAndSubscribe(adapter, commands.Claim) },
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.CreateGuestProfile)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.AttachResource)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.TransitionProfile)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.BindOwner)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.RefreshStudioAccess)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.RecordGrant)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.GrantOverride)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, commands.RevokeGrant)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.LookupToken)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.ResolveEntitlement)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.GetProfile)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.ListResources)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, queries.ListGrants)
		},
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			bus.Close()
			return nil, err
		}
		bus.subscriptions = append(bus.subscriptions, subscription)
	}
	return bus, nil
}

func (b *InvitationBus) Close() {
	if b == nil {
		return
	}
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

// MessageTypes lists the command and query types the bus handles.
func (b *InvitationBus) MessageTypes() []string {
	if b == nil {
		return nil
	}
	return b.adapter.RegisteredTypes()
}

// Claim dispatches a claim and returns the outcome even when the claim was
// rejected, so callers can render the visitor message next to the error.
func (b *InvitationBus) Claim(ctx context.Context, req core.ClaimRequest) (core.ClaimResult, error) {
	return dispatchWithResult[invitescommand.ClaimMessage, core.ClaimResult](ctx, invitescommand.ClaimMessage{Request: req})
}

func (b *InvitationBus) Invite(ctx context.Context, req core.InviteRequest) (core.InviteResult, error) {
	return dispatchWithResult[invitescommand.InviteMessage, core.InviteResult](ctx, invitescommand.InviteMessage{Request: req})
}

func (b *InvitationBus) GrantOverride(ctx context.Context, req core.GrantOverrideRequest) (core.EntitlementGrant, error) {
	return dispatchWithResult[invitescommand.GrantOverrideMessage, core.EntitlementGrant](ctx, invitescommand.GrantOverrideMessage{Request: req})
}

func (b *InvitationBus) IssueToken(ctx context.Context, req core.IssueTokenRequest) (core.InvitationToken, error) {
	return dispatchWithResult[invitescommand.IssueTokenMessage, core.InvitationToken](ctx, invitescommand.IssueTokenMessage{Request: req})
}

func (b *InvitationBus) RecordGrant(ctx context.Context, req core.RecordGrantRequest) (core.EntitlementGrant, error) {
	return dispatchWithResult[invitescommand.RecordGrantMessage, core.EntitlementGrant](ctx, invitescommand.RecordGrantMessage{Request: req})
}

func (b *InvitationBus) RevokeGrant(ctx context.Context, req core.RevokeGrantRequest) (core.EntitlementGrant, error) {
	return dispatchWithResult[invitescommand.RevokeGrantMessage, core.EntitlementGrant](ctx, invitescommand.RevokeGrantMessage{Request: req})
}

func (b *InvitationBus) TransitionProfile(ctx context.Context, profileID string, to string) (core.Profile, error) {
	return dispatchWithResult[invitescommand.TransitionProfileMessage, core.Profile](ctx, invitescommand.TransitionProfileMessage{
		ProfileID: profileID,
		To:        to,
	})
}

func (b *InvitationBus) ListGrants(ctx context.Context, subject string, includeRevoked bool) ([]core.EntitlementGrant, error) {
	return Query[invitesquery.ListGrantsMessage, []core.EntitlementGrant](ctx, invitesquery.ListGrantsMessage{
		SubjectIdentity: subject,
		IncludeRevoked:  includeRevoked,
	})
}

func (b *InvitationBus) ResolveEntitlement(ctx context.Context, identity string, resourceRef string) (core.Decision, error) {
	return Query[invitesquery.ResolveEntitlementMessage, core.Decision](ctx, invitesquery.ResolveEntitlementMessage{
		Identity:    identity,
		ResourceRef: resourceRef,
	})
}

func dispatchWithResult[T any, R any](ctx context.Context, msg T) (R, error) {
	collector := command.NewResult[R]()
	err := Dispatch(command.ContextWithResult(ctx, collector), msg)
	result, _ := collector.Load()
	return result, err
}
