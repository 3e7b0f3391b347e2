package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ InvitationService = (*Service)(nil)
	_ ConfigProvider    = (*CfgxConfigProvider)(nil)
	_ OptionsResolver   = GoOptionsResolver{}
	_ TokenGenerator    = RandomTokenGenerator{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
