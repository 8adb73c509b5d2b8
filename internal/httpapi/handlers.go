package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/usecase/review"
)

const maxBodyBytes = 1 << 20

type reviewHandler struct {
	reviews ReviewService
	events  EventSource
}

func (h *reviewHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	query := r.URL.Query()

	input := review.ListInput{Actor: &actor, Kind: strings.TrimSpace(query.Get("type"))}
	if raw := query.Get("status"); raw != "" {
		status, err := reviewable.ParseStatus(raw)
		if err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		input.Status = &status
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeErrors(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		input.Limit = limit
	}

	entries, err := h.reviews.List(r.Context(), input)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	pending, err := h.reviews.PendingCount(r.Context(), &actor)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryJSON(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reviewables": out,
		"meta": map[string]any{
			"total_rows_reviewables": len(out),
			"pending_count":          pending,
		},
	})
}

func (h *reviewHandler) count(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	count, err := h.reviews.PendingCount(r.Context(), &actor)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (h *reviewHandler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewableID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())
	entry, err := h.reviews.Describe(r.Context(), actor, id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviewable": entryJSON(entry)})
}

type updateRequest struct {
	Reviewable map[string]any `json:"reviewable"`
}

func (h *reviewHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewableID(w, r)
	if !ok {
		return
	}
	version, ok := versionParam(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	result, err := h.reviews.UpdateReviewable(r.Context(), review.UpdateInput{
		ReviewableID: id,
		Actor:        actor,
		Params:       req.Reviewable,
		Version:      version,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if !result.Saved {
		writeErrors(w, http.StatusUnprocessableEntity, result.Errors.Messages()...)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reviewable": map[string]any{
			"id":      result.Item.ID,
			"version": result.Item.Version,
			"status":  result.Item.Status.String(),
		},
	})
}

func (h *reviewHandler) perform(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewableID(w, r)
	if !ok {
		return
	}
	version, ok := versionParam(w, r)
	if !ok {
		return
	}
	args := reviewable.Args{}
	if !decodeBody(w, r, &args) {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	result, err := h.reviews.PerformReviewable(r.Context(), review.PerformInput{
		ReviewableID: id,
		PerformedBy:  actor,
		ActionID:     chi.URLParam(r, "action"),
		Args:         args,
		Version:      version,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if !result.Success {
		writeErrors(w, http.StatusUnprocessableEntity, result.Errors...)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviewable_perform_result": result})
}

func entryJSON(entry review.ListEntry) map[string]any {
	out := make(map[string]any, len(entry.Serialized)+2)
	for key, value := range entry.Serialized {
		out[key] = value
	}
	actions := entry.Actions
	if actions == nil {
		actions = []reviewable.Action{}
	}
	fields := entry.EditableFields
	if fields == nil {
		fields = []reviewable.EditableField{}
	}
	out["actions"] = actions
	out["editable_fields"] = fields
	return out
}

func reviewableID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeErrors(w, http.StatusBadRequest, "invalid reviewable id")
		return 0, false
	}
	return id, true
}

// versionParam leaves a missing version nil so the service can reject it.
func versionParam(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("version"))
	if raw == "" {
		return nil, true
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, "version must be an integer")
		return nil, false
	}
	return &version, true
}

// decodeBody accepts an empty body and leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeErrors(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if fields, ok := reviewable.AsValidation(err); ok {
		writeErrors(w, http.StatusUnprocessableEntity, fields.Messages()...)
		return
	}
	switch {
	case errors.Is(err, reviewable.ErrVersionRequired):
		writeErrors(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, reviewable.ErrUpdateConflict):
		writeErrors(w, http.StatusConflict, reviewable.ErrUpdateConflict.Error())
	case errors.Is(err, reviewable.ErrNotFound):
		writeErrors(w, http.StatusNotFound, "not found")
	case errors.Is(err, reviewable.ErrForbidden):
		writeErrors(w, http.StatusForbidden, forbiddenMessage(err))
	default:
		writeServerError(ctx, w, err)
	}
}

func forbiddenMessage(err error) string {
	var invalid *reviewable.InvalidActionError
	if errors.As(err, &invalid) {
		return invalid.Error()
	}
	return "forbidden"
}

func writeServerError(ctx context.Context, w http.ResponseWriter, err error) {
	logging.Error(ctx, "request failed", slog.Any("err", errs.Loggable(err)))
	writeErrors(w, http.StatusInternalServerError, "internal server error")
}

func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	if messages == nil {
		messages = []string{}
	}
	writeJSON(w, status, map[string]any{"errors": messages})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
