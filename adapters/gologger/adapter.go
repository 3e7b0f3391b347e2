package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	LoggerService = "invites"
	LoggerHTTP    = "invites.http"
	LoggerPurge   = "invites.purge"
	LoggerAlerts  = "invites.alerts"
)

// Loggers holds the named loggers handed to each part of the daemon.
type Loggers struct {
	Provider    glog.LoggerProvider
	Service     glog.Logger
	HTTP        glog.Logger
	Alerts      glog.Logger
	Purge       glog.Logger
	JobProvider job.LoggerProvider
	JobLogger   job.Logger
}

// ResolveLoggers picks the service logger with precedence provider > logger >
// nop and derives one logger per component. Components the provider does not
// name write to the service logger.
func ResolveLoggers(provider glog.LoggerProvider, logger glog.Logger) Loggers {
	resolved, service := glog.Resolve(LoggerService, provider, logger)
	service = glog.Ensure(service)
	if provider != nil {
		resolved = glog.ProviderWithFallback(provider, service)
	}
	purge := resolved.GetLogger(LoggerPurge)
	return Loggers{
		Provider:    resolved,
		Service:     service,
		HTTP:        resolved.GetLogger(LoggerHTTP),
		Alerts:      resolved.GetLogger(LoggerAlerts),
		Purge:       purge,
		JobProvider: job.GoLoggerProvider(resolved),
		JobLogger:   job.GoLogger(purge),
	}
}
