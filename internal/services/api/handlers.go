package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rescuemesh/notification-service/internal/dispatch"
	"github.com/rescuemesh/notification-service/internal/domain/notification"
	"github.com/rescuemesh/notification-service/internal/pkg/validate"
	"github.com/rescuemesh/notification-service/internal/repository/postgres"
)

type Handlers struct {
	disp  *dispatch.Dispatcher
	store notification.Store
	log   *zap.Logger
}

func NewHandlers(disp *dispatch.Dispatcher, store notification.Store, log *zap.Logger) *Handlers {
	return &Handlers{disp: disp, store: store, log: log.With(zap.String("component", "api.handlers"))}
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details ...string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: msg, Details: details}})
}

// Send handles POST /api/notifications/send.
func (h *Handlers) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
		return
	}

	res, err := h.disp.Dispatch(r.Context(), req.ToDispatch())
	if err != nil {
		h.log.Error("dispatch failed", zap.String("recipient_id", req.RecipientID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to send notification")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SendBatch handles POST /api/notifications/batch.
func (h *Handlers) SendBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
		return
	}

	items := h.disp.DispatchBatch(r.Context(), req.ToDispatch())

	results := make([]any, len(items))
	for i, it := range items {
		if it.Err != nil {
			results[i] = map[string]string{"error": it.Err.Error()}
			continue
		}
		results[i] = it.Result
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
}

// Status handles GET /api/notifications/{notificationID}/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationID")

	n, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found")
			return
		}
		h.log.Error("get notification", zap.String("notification_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notificationId": n.ID,
		"status":         n.Status,
		"channels":       n.ChannelStatus,
		"createdAt":      n.CreatedAt,
		"sentAt":         n.SentAt,
		"failedAt":       n.FailedAt,
	})
}

// History handles GET /api/notifications/user/{userID}.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	list, total, err := h.store.ListByRecipient(r.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("list notifications", zap.String("recipient_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch notifications")
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, n := range list {
		out = append(out, map[string]any{
			"notificationId": n.ID,
			"type":           n.Type,
			"message":        n.Message,
			"status":         n.Status,
			"channels":       n.ChannelStatus,
			"createdAt":      n.CreatedAt,
			"sentAt":         n.SentAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out, "total": total})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
