package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-invites/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDProfilePurge = "invites.profile.purge"

	paramProfileID   = "profile_id"
	paramResourceIDs = "resource_ids"
	paramPurgedAt    = "purged_at"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToPurgeMessage encodes a profile purge as a go-job execution message. The
// idempotency key is the profile id so a repeated delete enqueues one job.
func ToPurgeMessage(purge core.ProfilePurge) *job.ExecutionMessage {
	resourceIDs := make([]string, 0, len(purge.ResourceIDs))
	for _, id := range purge.ResourceIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			resourceIDs = append(resourceIDs, trimmed)
		}
	}
	profileID := strings.TrimSpace(purge.ProfileID)
	return &job.ExecutionMessage{
		JobID:      JobIDProfilePurge,
		ScriptPath: JobIDProfilePurge,
		Parameters: map[string]any{
			paramProfileID:   profileID,
			paramResourceIDs: resourceIDs,
			paramPurgedAt:    purge.PurgedAt.UTC().Format(time.RFC3339Nano),
		},
		IdempotencyKey: "profile-purge:" + profileID,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// FromPurgeMessage decodes a message produced by ToPurgeMessage. Parameters
// may come back from a queue backend as []any after serialization.
func FromPurgeMessage(msg *job.ExecutionMessage) (core.ProfilePurge, error) {
	if msg == nil {
		return core.ProfilePurge{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDProfilePurge {
		return core.ProfilePurge{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	profileID, _ := msg.Parameters[paramProfileID].(string)
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return core.ProfilePurge{}, fmt.Errorf("gojob: purge message missing profile id")
	}
	purge := core.ProfilePurge{ProfileID: profileID}
	switch ids := msg.Parameters[paramResourceIDs].(type) {
	case []string:
		purge.ResourceIDs = append(purge.ResourceIDs, ids...)
	case []any:
		for _, raw := range ids {
			if id, ok := raw.(string); ok && strings.TrimSpace(id) != "" {
				purge.ResourceIDs = append(purge.ResourceIDs, strings.TrimSpace(id))
			}
		}
	}
	if raw, ok := msg.Parameters[paramPurgedAt].(string); ok && raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return core.ProfilePurge{}, fmt.Errorf("gojob: invalid purged_at: %w", err)
		}
		purge.PurgedAt = at
	}
	return purge, nil
}

// PurgeScheduler hands deleted profiles to go-job.
type PurgeScheduler struct {
	enqueuer queue.Enqueuer
}

func NewPurgeScheduler(enqueuer queue.Enqueuer) *PurgeScheduler {
	return &PurgeScheduler{enqueuer: enqueuer}
}

func (s *PurgeScheduler) SchedulePurge(ctx context.Context, purge core.ProfilePurge) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(purge.ProfileID) == "" {
		return fmt.Errorf("gojob: purge profile id is required")
	}
	return s.enqueuer.Enqueue(ctx, ToPurgeMessage(purge))
}

// PurgeHandler removes the stored objects of a deleted profile.
type PurgeHandler func(ctx context.Context, purge core.ProfilePurge) error

// PurgeWorker pulls one purge delivery at a time and acks or nacks it under
// the retry policy.
type PurgeWorker struct {
	dequeuer queue.Dequeuer
	handler  PurgeHandler
	policy   RetryPolicy
	hook     worker.Hook
}

func NewPurgeWorker(dequeuer queue.Dequeuer, handler PurgeHandler, policy RetryPolicy, hook worker.Hook) *PurgeWorker {
	return &PurgeWorker{dequeuer: dequeuer, handler: handler, policy: policy, hook: hook}
}

// ProcessNext handles one delivery. attempt is the delivery attempt as
// tracked by the queue backend, starting at 1. A non-positive attempt is read
// from the delivery when it reports one.
func (w *PurgeWorker) ProcessNext(ctx context.Context, attempt int) error {
	if w == nil || w.dequeuer == nil || w.handler == nil {
		return fmt.Errorf("gojob: purge worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	if attempt <= 0 {
		attempt = deliveryAttempt(delivery)
	}
	event := worker.Event{Message: delivery.Message(), Delivery: delivery, Attempt: attempt, StartedAt: time.Now().UTC()}
	w.onStart(ctx, event)

	purge, err := FromPurgeMessage(delivery.Message())
	if err != nil {
		event.Err = err
		event.Duration = time.Since(event.StartedAt)
		w.onFailure(ctx, event)
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
	}

	if err := w.handler(ctx, purge); err != nil {
		opts := w.policy.NormalizeAttempt(queue.NackOptions{Requeue: true, Reason: err.Error()}, attempt)
		event.Err = err
		event.Delay = opts.Delay
		event.Duration = time.Since(event.StartedAt)
		if opts.Requeue {
			w.onRetry(ctx, event)
		} else {
			w.onFailure(ctx, event)
		}
		return delivery.Nack(ctx, opts)
	}

	event.Duration = time.Since(event.StartedAt)
	w.onSuccess(ctx, event)
	return delivery.Ack(ctx)
}

// Run processes deliveries until ctx is done. Errors from the queue backend
// are passed to onError and do not stop the loop.
func (w *PurgeWorker) Run(ctx context.Context, onError func(error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := w.ProcessNext(ctx, 0); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}

func deliveryAttempt(delivery queue.Delivery) int {
	if counted, ok := delivery.(interface{ Attempt() int }); ok && counted.Attempt() > 0 {
		return counted.Attempt()
	}
	return 1
}

func (w *PurgeWorker) onStart(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *PurgeWorker) onSuccess(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *PurgeWorker) onFailure(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func (w *PurgeWorker) onRetry(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, event)
	}
}

// MetricsHook reports purge job lifecycle events to the service metrics
// recorder.
type MetricsHook struct {
	recorder core.MetricsRecorder
}

func NewMetricsHook(recorder core.MetricsRecorder) *MetricsHook {
	return &MetricsHook{recorder: recorder}
}

func (h *MetricsHook) OnStart(context.Context, worker.Event) {}

func (h *MetricsHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.record(ctx, event, "success")
}

func (h *MetricsHook) OnFailure(ctx context.Context, event worker.Event) {
	h.record(ctx, event, "failure")
}

func (h *MetricsHook) OnRetry(ctx context.Context, event worker.Event) {
	h.record(ctx, event, "retry")
}

func (h *MetricsHook) record(ctx context.Context, event worker.Event, status string) {
	if h == nil || h.recorder == nil {
		return
	}
	jobID := JobIDProfilePurge
	if event.Message != nil && strings.TrimSpace(event.Message.JobID) != "" {
		jobID = strings.TrimSpace(event.Message.JobID)
	}
	tags := map[string]string{"job_id": jobID, "status": status}
	h.recorder.IncCounter(ctx, "invites.job.total", 1, tags)
	h.recorder.ObserveHistogram(ctx, "invites.job.duration_ms", float64(event.Duration.Milliseconds()), tags)
}

var (
	_ core.PurgeScheduler = (*PurgeScheduler)(nil)
	_ worker.Hook         = (*MetricsHook)(nil)
)
