package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[InviteMessage]              = (*InviteCommand)(nil)
	_ gocmd.Commander[IssueTokenMessage]          = (*IssueTokenCommand)(nil)
	_ gocmd.Commander[ClaimMessage]               = (*ClaimCommand)(nil)
	_ gocmd.Commander[CreateGuestProfileMessage]  = (*CreateGuestProfileCommand)(nil)
	_ gocmd.Commander[AttachResourceMessage]      = (*AttachResourceCommand)(nil)
	_ gocmd.Commander[TransitionProfileMessage]   = (*TransitionProfileCommand)(nil)
	_ gocmd.Commander[BindOwnerMessage]           = (*BindOwnerCommand)(nil)
	_ gocmd.Commander[RefreshStudioAccessMessage] = (*RefreshStudioAccessCommand)(nil)
	_ gocmd.Commander[RecordGrantMessage]         = (*RecordGrantCommand)(nil)
	_ gocmd.Commander[GrantOverrideMessage]       = (*GrantOverrideCommand)(nil)
	_ gocmd.Commander[RevokeGrantMessage]         = (*RevokeGrantCommand)(nil)
)
