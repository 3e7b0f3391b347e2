package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-invites/core"

const (
	statusSuccess  = "success"
	statusRejected = "rejected"
	statusFailure  = "failure"
)

func (s *Service) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.Tracer(tracerName).Start(ctx, "invites."+normalizeOperation(operation), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil && operationStatus(err) == statusFailure {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := operationStatus(err)

	contextFields := RedactSensitiveMap(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
		enrichErrorFields(contextFields, err)
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"outcome", "source", "reason"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	s.recordCounter(ctx, "invites."+operation+".total", 1, tags)
	s.recordHistogram(ctx, "invites."+operation+".duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)

	switch status {
	case statusFailure:
		s.logError(ctx, operation+" failed", contextFields)
	case statusRejected:
		s.logInfo(ctx, operation+" rejected", contextFields)
	default:
		s.logInfo(ctx, operation+" succeeded", contextFields)
	}
}

// operationStatus separates expected user-facing outcomes from system
// failures so invalid or expired links never page anyone.
func operationStatus(err error) string {
	if err == nil {
		return statusSuccess
	}
	var claimErr *ClaimError
	if errors.As(err, &claimErr) {
		if claimErr.Outcome == ClaimOutcomePartialFailure {
			return statusFailure
		}
		return statusRejected
	}
	mapped := MapError(err)
	if mapped == nil {
		return statusFailure
	}
	switch mapped.Category {
	case goerrors.CategoryInternal, goerrors.CategoryExternal, goerrors.CategoryOperation:
		return statusFailure
	default:
		return statusRejected
	}
}

func enrichErrorFields(fields map[string]any, err error) {
	mapped := MapError(err)
	if mapped == nil {
		return
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		mapped = richErr
	}
	fields["error_category"] = fmt.Sprint(mapped.Category)
	if code := strings.TrimSpace(mapped.TextCode); code != "" {
		fields["error_text_code"] = code
	}
	fields["error_severity"] = mapped.Severity.String()
	if len(mapped.Metadata) > 0 {
		fields["error_metadata"] = RedactSensitiveMap(mapped.Metadata)
		for _, key := range []string{"trace_id", "request_id"} {
			if value, ok := mapped.Metadata[key]; ok {
				if _, exists := fields[key]; !exists {
					fields[key] = value
				}
			}
		}
	}
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "info", message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "error", message, fields)
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
