package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-invites/core"
)

type MutatingService interface {
	Invite(ctx context.Context, req core.InviteRequest) (core.InviteResult, error)
	IssueToken(ctx context.Context, req core.IssueTokenRequest) (core.InvitationToken, error)
	Claim(ctx context.Context, req core.ClaimRequest) (core.ClaimResult, error)
	CreateGuestProfile(ctx context.Context, req core.CreateGuestProfileRequest) (core.Profile, error)
	AttachResource(ctx context.Context, req core.AttachResourceRequest) (core.OwnedResource, error)
	TransitionProfile(ctx context.Context, req core.TransitionProfileRequest) (core.Profile, error)
	BindOwner(ctx context.Context, profileID string, identity string) (core.Profile, error)
	RefreshStudioAccess(ctx context.Context, identity string) ([]core.Profile, error)
	RecordGrant(ctx context.Context, req core.RecordGrantRequest) (core.EntitlementGrant, error)
	GrantOverride(ctx context.Context, req core.GrantOverrideRequest) (core.EntitlementGrant, error)
	RevokeGrant(ctx context.Context, req core.RevokeGrantRequest) (core.EntitlementGrant, error)
}

type InviteCommand struct {
	service MutatingService
}

func NewInviteCommand(service MutatingService) *InviteCommand {
	return &InviteCommand{service: service}
}

func (c *InviteCommand) Execute(ctx context.Context, msg InviteMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: invite service is required")
	}
	out, err := c.service.Invite(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type IssueTokenCommand struct {
	service MutatingService
}

func NewIssueTokenCommand(service MutatingService) *IssueTokenCommand {
	return &IssueTokenCommand{service: service}
}

func (c *IssueTokenCommand) Execute(ctx context.Context, msg IssueTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: token service is required")
	}
	out, err := c.service.IssueToken(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ClaimCommand struct {
	service MutatingService
}

func NewClaimCommand(service MutatingService) *ClaimCommand {
	return &ClaimCommand{service: service}
}

func (c *ClaimCommand) Execute(ctx context.Context, msg ClaimMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: claim service is required")
	}
	out, err := c.service.Claim(ctx, msg.Request)
	if out.Outcome != "" {
		// rejected claims still carry the outcome shown to the visitor
		storeResult(ctx, out)
	}
	return err
}

type CreateGuestProfileCommand struct {
	service MutatingService
}

func NewCreateGuestProfileCommand(service MutatingService) *CreateGuestProfileCommand {
	return &CreateGuestProfileCommand{service: service}
}

func (c *CreateGuestProfileCommand) Execute(ctx context.Context, msg CreateGuestProfileMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: profile service is required")
	}
	out, err := c.service.CreateGuestProfile(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AttachResourceCommand struct {
	service MutatingService
}

func NewAttachResourceCommand(service MutatingService) *AttachResourceCommand {
	return &AttachResourceCommand{service: service}
}

func (c *AttachResourceCommand) Execute(ctx context.Context, msg AttachResourceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: profile service is required")
	}
	out, err := c.service.AttachResource(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TransitionProfileCommand struct {
	service MutatingService
}

func NewTransitionProfileCommand(service MutatingService) *TransitionProfileCommand {
	return &TransitionProfileCommand{service: service}
}

func (c *TransitionProfileCommand) Execute(ctx context.Context, msg TransitionProfileMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: profile service is required")
	}
	to, err := core.ParseProfileStatus(msg.To)
	if err != nil {
		return commandWrapValidation(err, "command: invalid target status")
	}
	out, err := c.service.TransitionProfile(ctx, core.TransitionProfileRequest{ProfileID: msg.ProfileID, To: to})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type BindOwnerCommand struct {
	service MutatingService
}

func NewBindOwnerCommand(service MutatingService) *BindOwnerCommand {
	return &BindOwnerCommand{service: service}
}

func (c *BindOwnerCommand) Execute(ctx context.Context, msg BindOwnerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: profile service is required")
	}
	out, err := c.service.BindOwner(ctx, msg.ProfileID, msg.Identity)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshStudioAccessCommand struct {
	service MutatingService
}

func NewRefreshStudioAccessCommand(service MutatingService) *RefreshStudioAccessCommand {
	return &RefreshStudioAccessCommand{service: service}
}

func (c *RefreshStudioAccessCommand) Execute(ctx context.Context, msg RefreshStudioAccessMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: profile service is required")
	}
	out, err := c.service.RefreshStudioAccess(ctx, msg.Identity)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RecordGrantCommand struct {
	service MutatingService
}

func NewRecordGrantCommand(service MutatingService) *RecordGrantCommand {
	return &RecordGrantCommand{service: service}
}

func (c *RecordGrantCommand) Execute(ctx context.Context, msg RecordGrantMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: grant service is required")
	}
	out, err := c.service.RecordGrant(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type GrantOverrideCommand struct {
	service MutatingService
}

func NewGrantOverrideCommand(service MutatingService) *GrantOverrideCommand {
	return &GrantOverrideCommand{service: service}
}

func (c *GrantOverrideCommand) Execute(ctx context.Context, msg GrantOverrideMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: grant service is required")
	}
	out, err := c.service.GrantOverride(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RevokeGrantCommand struct {
	service MutatingService
}

func NewRevokeGrantCommand(service MutatingService) *RevokeGrantCommand {
	return &RevokeGrantCommand{service: service}
}

func (c *RevokeGrantCommand) Execute(ctx context.Context, msg RevokeGrantMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: grant service is required")
	}
	out, err := c.service.RevokeGrant(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
