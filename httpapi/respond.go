package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-invites/core"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Outcome  string         `json:"outcome,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil {
		return fmt.Errorf("httpapi: request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("httpapi: invalid request body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError renders err as a go-errors envelope. Internal failures keep
// their cause out of the response body and in the log.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := mapHTTPError(err)
	body := errorBody{Code: mapped.TextCode, Message: mapped.Message}
	if outcome, ok := mapped.Metadata["outcome"].(string); ok {
		body.Outcome = outcome
	}
	if mapped.Category == goerrors.CategoryInternal {
		if body.Outcome == "" {
			body.Message = "An unexpected error occurred"
		}
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"text_code", mapped.TextCode,
			"error", err.Error(),
		)
	}
	respondJSON(w, mapped.Code, map[string]any{"error": body})
}

func mapHTTPError(err error) *goerrors.Error {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return goerrors.New("sign in to continue", goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode("INVITES_UNAUTHENTICATED")
	case errors.Is(err, ErrAdminRequired):
		return goerrors.New("admin access required", goerrors.CategoryAuthz).
			WithCode(http.StatusForbidden).
			WithTextCode("INVITES_FORBIDDEN")
	}
	mapped := core.MapError(err)
	if mapped == nil {
		return goerrors.New("An unexpected error occurred", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ErrorCodeInternal)
	}
	if mapped.Code == 0 {
		mapped.Code = http.StatusInternalServerError
	}
	return mapped
}
