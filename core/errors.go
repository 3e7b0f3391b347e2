package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeBadInput             = "INVITES_BAD_INPUT"
	ErrorCodeTokenInvalid         = "TOKEN_INVALID"
	ErrorCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrorCodeTokenAlreadyConsumed = "TOKEN_ALREADY_CONSUMED"
	ErrorCodeOwnerMismatch        = "OWNER_MISMATCH"
	ErrorCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrorCodeClaimPartialFailure  = "CLAIM_PARTIAL_FAILURE"
	ErrorCodeResourceNotFound     = "RESOURCE_NOT_FOUND"
	ErrorCodeGrantNotFound        = "GRANT_NOT_FOUND"
	ErrorCodeConflict             = "INVITES_CONFLICT"
	ErrorCodeInternal             = "INVITES_INTERNAL_ERROR"
)

// ClaimError describes a claim that did not grant access. It unwraps to the
// matching sentinel so callers can use errors.Is.
type ClaimError struct {
	Outcome ClaimOutcome
	Cause   error
}

func (e *ClaimError) Error() string {
	if e == nil {
		return ""
	}
	message := "core: claim " + string(e.Outcome)
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e *ClaimError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *ClaimError) TextCode() string {
	if e == nil {
		return ErrorCodeInternal
	}
	switch e.Outcome {
	case ClaimOutcomeInvalid:
		return ErrorCodeTokenInvalid
	case ClaimOutcomeExpired:
		return ErrorCodeTokenExpired
	case ClaimOutcomeConsumedByOther:
		return ErrorCodeTokenAlreadyConsumed
	case ClaimOutcomePartialFailure:
		return ErrorCodeClaimPartialFailure
	default:
		return ErrorCodeInternal
	}
}

func (e *ClaimError) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category := goerrors.CategoryBadInput
	code := http.StatusBadRequest
	switch e.Outcome {
	case ClaimOutcomeInvalid:
		category, code = goerrors.CategoryNotFound, http.StatusNotFound
	case ClaimOutcomeExpired:
		category, code = goerrors.CategoryBadInput, http.StatusGone
	case ClaimOutcomeConsumedByOther:
		category, code = goerrors.CategoryConflict, http.StatusConflict
	case ClaimOutcomePartialFailure:
		category, code = goerrors.CategoryInternal, http.StatusInternalServerError
	}
	mapped := goerrors.New(e.Outcome.Message(), category).
		WithCode(code).
		WithTextCode(e.TextCode()).
		WithMetadata(map[string]any{"outcome": string(e.Outcome)})
	mapped.Source = e
	return mapped
}

func newClaimError(outcome ClaimOutcome, cause error) *ClaimError {
	return &ClaimError{Outcome: outcome, Cause: cause}
}

// MapError converts any error produced by this package into a go-errors
// envelope with a stable text code and HTTP status. The original error stays
// reachable through Unwrap so errors.Is keeps matching the sentinels.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var claimErr *ClaimError
	if errors.As(err, &claimErr) {
		return claimErr.ToServiceError()
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrTokenNotFound):
		return newServiceError(err, goerrors.CategoryNotFound, ErrorCodeTokenInvalid)
	case errors.Is(err, ErrTokenExpired):
		return newServiceError(err, goerrors.CategoryBadInput, ErrorCodeTokenExpired).WithCode(http.StatusGone)
	case errors.Is(err, ErrTokenAlreadyConsumed):
		return newServiceError(err, goerrors.CategoryConflict, ErrorCodeTokenAlreadyConsumed)
	case errors.Is(err, ErrOwnerMismatch):
		return newServiceError(err, goerrors.CategoryConflict, ErrorCodeOwnerMismatch)
	case errors.Is(err, ErrInvalidProfileTransition), errors.Is(err, ErrProfileDeleted):
		return newServiceError(err, goerrors.CategoryConflict, ErrorCodeInvalidTransition)
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrResourceNotFound):
		return newServiceError(err, goerrors.CategoryNotFound, ErrorCodeResourceNotFound)
	case errors.Is(err, ErrGrantNotFound):
		return newServiceError(err, goerrors.CategoryNotFound, ErrorCodeGrantNotFound)
	case errors.Is(err, ErrGrantAlreadyRevoked):
		return newServiceError(err, goerrors.CategoryConflict, ErrorCodeConflict)
	case errors.Is(err, ErrReservedGrantSource):
		return newServiceError(err, goerrors.CategoryBadInput, ErrorCodeBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newServiceError(err, goerrors.CategoryBadInput, ErrorCodeBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newServiceError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	mapped := goerrors.New(source.Error(), category).WithTextCode(textCode)
	mapped.Source = source
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeBadInput
	case goerrors.CategoryNotFound:
		return ErrorCodeResourceNotFound
	case goerrors.CategoryConflict:
		return ErrorCodeConflict
	default:
		return ErrorCodeInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
