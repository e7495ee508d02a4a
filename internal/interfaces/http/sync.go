package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"racuni/internal/domain/entity"
	"racuni/internal/domain/syncer"
	"racuni/internal/shared/middleware"
)

// DefaultMaxBodyBytes caps push request bodies.
const DefaultMaxBodyBytes = 1 << 20

// SyncHandler serves the push, pull and debug endpoints.
type SyncHandler struct {
	service      *syncer.Service
	maxBodyBytes int64
	development  bool
}

// NewSyncHandler creates a sync handler. With development set, 500 responses
// carry the underlying error message.
func NewSyncHandler(service *syncer.Service, maxBodyBytes int64, development bool) *SyncHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &SyncHandler{service: service, maxBodyBytes: maxBodyBytes, development: development}
}

// PushResponse is the success envelope of POST /sync.
type PushResponse struct {
	Success    bool             `json:"success"`
	Operation  entity.Operation `json:"operation"`
	EntityType entity.Kind      `json:"entityType"`
	EntityID   string           `json:"entityId"`
}

// PullResponse is the body of GET /sync/pull.
type PullResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Meta    PullMeta       `json:"meta"`
}

type PullMeta struct {
	PulledAt time.Time      `json:"pulledAt"`
	Counts   map[string]int `json:"counts"`
	Failed   []string       `json:"failed,omitempty"`
}

// DebugResponse is the body of GET /sync/debug.
type DebugResponse struct {
	Success       bool                  `json:"success"`
	UserID        string                `json:"userId"`
	Counts        map[string]int64      `json:"counts"`
	LatestUpdates map[string]*time.Time `json:"latestUpdates"`
	Failed        []string              `json:"failed,omitempty"`
}

// HandlePush applies one mutation envelope for the authenticated user.
func (h *SyncHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeMethodNotAllowed, "Method not allowed")
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeUnauthorized, "Unauthorized")
		return
	}

	env, fieldErrs, problem := h.decodeEnvelope(w, r)
	if problem != "" {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeInvalidJSON, problem)
		return
	}
	if len(fieldErrs) > 0 {
		h.writeValidation(w, fieldErrs)
		return
	}

	result, err := h.service.Push(r.Context(), userID, *env)
	if err != nil {
		var verrs entity.FieldErrors
		switch {
		case errors.As(err, &verrs):
			h.writeValidation(w, verrs)
		case errors.Is(err, syncer.ErrUnknownEntityType):
			middleware.WriteError(w, http.StatusBadRequest, middleware.CodeUnknownEntityType,
				fmt.Sprintf("Unknown entity type: %q", env.EntityType))
		default:
			log.Printf("Error pushing %s/%s for user %s: %v", env.EntityType, env.EntityID, userID, err)
			h.writeInternal(w, "Failed to apply mutation", err)
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, PushResponse{
		Success:    true,
		Operation:  result.Operation,
		EntityType: result.EntityType,
		EntityID:   result.EntityID,
	})
}

// decodeEnvelope reads a single JSON object from the body. A non-empty
// problem means the body is not usable JSON; field errors report wrongly
// typed or unknown envelope members.
func (h *SyncHandler) decodeEnvelope(w http.ResponseWriter, r *http.Request) (*syncer.Envelope, entity.FieldErrors, string) {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var env syncer.Envelope
	if err := dec.Decode(&env); err != nil {
		var maxErr *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxErr):
			return nil, nil, fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return nil, nil, "Request body is empty"
		case errors.As(err, &typeErr):
			var errs entity.FieldErrors
			if typeErr.Field == "" {
				errs.Add("body", "must be an object")
			} else {
				errs.Add(typeErr.Field, "must be a %s", typeErr.Type.Kind())
			}
			return nil, errs, ""
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			var errs entity.FieldErrors
			name := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			errs.Add(name, "is not an envelope field")
			return nil, errs, ""
		default:
			return nil, nil, "Invalid JSON"
		}
	}
	if dec.More() {
		return nil, nil, "Request body must contain a single JSON object"
	}
	return &env, nil, ""
}

// HandlePull returns the authenticated user's full live entity set.
func (h *SyncHandler) HandlePull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeMethodNotAllowed, "Method not allowed")
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeUnauthorized, "Unauthorized")
		return
	}

	snap, err := h.service.Pull(r.Context(), userID)
	if err != nil {
		log.Printf("Error pulling entities for user %s: %v", userID, err)
		h.writeInternal(w, "Failed to pull entities", err)
		return
	}

	data := make(map[string]any, len(snap.Collections)+1)
	for key, rows := range snap.Collections {
		data[key] = rows
	}
	data["settings"] = snap.Settings

	middleware.WriteJSON(w, http.StatusOK, PullResponse{
		Success: true,
		Data:    data,
		Meta: PullMeta{
			PulledAt: snap.PulledAt,
			Counts:   snap.Counts,
			Failed:   snap.Failed,
		},
	})
}

// HandleDebug returns per-kind counts and latest update times.
func (h *SyncHandler) HandleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeMethodNotAllowed, "Method not allowed")
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeUnauthorized, "Unauthorized")
		return
	}

	diag, err := h.service.Diagnose(r.Context(), userID)
	if err != nil {
		log.Printf("Error collecting diagnostics for user %s: %v", userID, err)
		h.writeInternal(w, "Failed to collect diagnostics", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, DebugResponse{
		Success:       true,
		UserID:        diag.UserID,
		Counts:        diag.Counts,
		LatestUpdates: diag.LatestUpdates,
		Failed:        diag.Failed,
	})
}

func (h *SyncHandler) writeValidation(w http.ResponseWriter, errs entity.FieldErrors) {
	fields := make([]middleware.FieldError, len(errs))
	for i, e := range errs {
		fields[i] = middleware.FieldError{Path: e.Path, Message: e.Message}
	}
	middleware.WriteError(w, http.StatusBadRequest, middleware.CodeValidationFailed, "Validation failed", fields...)
}

// writeInternal hides err from clients outside development.
func (h *SyncHandler) writeInternal(w http.ResponseWriter, message string, err error) {
	if h.development {
		message = message + ": " + err.Error()
	}
	middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternalError, message)
}

// HandleHealth reports liveness.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
