package gocommand

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// MessageTypePrefix namespaces every command and query the bus carries.
const MessageTypePrefix = "invites."

// QueueResolverKey is the resolver slot used when invitation commands are
// mirrored into a go-job queue registry.
const QueueResolverKey = "invites.queue"

type invitationMessage interface {
	Type() string
}

// ValidateMessageContract checks the go-command contract and the invites
// type namespace.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(invitationMessage)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	return validateMessageType(m.Type())
}

func validateMessageType(msgType string) error {
	msgType = strings.TrimSpace(msgType)
	if msgType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(msgType, MessageTypePrefix) {
		return fmt.Errorf("gocommand: message type %q is outside the %q namespace", msgType, MessageTypePrefix)
	}
	return nil
}

// RegistryAdapter wraps a go-command registry and remembers which invitation
// message types have a handler, so one type is never bound twice.
type RegistryAdapter struct {
	registry *command.Registry

	mu    sync.Mutex
	types map[string]struct{}
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry, types: map[string]struct{}{}}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// RegisteredTypes lists the claimed message types in sorted order.
func (a *RegistryAdapter) RegisteredTypes() []string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.types))
	for msgType := range a.types {
		out = append(out, msgType)
	}
	slices.Sort(out)
	return out
}

func (a *RegistryAdapter) claimType(msgType string) error {
	if err := validateMessageType(msgType); err != nil {
		return err
	}
	msgType = strings.TrimSpace(msgType)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.types[msgType]; exists {
		return fmt.Errorf("gocommand: handler for %q already registered", msgType)
	}
	a.types[msgType] = struct{}{}
	return nil
}

func (a *RegistryAdapter) releaseType(msgType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.types, strings.TrimSpace(msgType))
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// MirrorToQueue copies every registered invitation command into a go-job
// queue registry when the command registry is initialized.
func (a *RegistryAdapter) MirrorToQueue(queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(QueueResolverKey, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe claims T's message type, subscribes cmd on the
// dispatcher and records it in the registry. Any failure undoes the earlier
// steps.
func RegisterAndSubscribe[T invitationMessage](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	var zero T
	if err := adapter.claimType(zero.Type()); err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.registry.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		adapter.releaseType(zero.Type())
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T invitationMessage, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	var zero T
	if err := adapter.claimType(zero.Type()); err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.registry.RegisterCommand(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		adapter.releaseType(zero.Type())
		return nil, err
	}
	return subscription, nil
}
