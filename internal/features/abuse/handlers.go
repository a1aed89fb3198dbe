// Package abuse — handlers.go: эндпоинты нарушений и банов.
package abuse

import (
	"net/http"
	"strconv"

	"serotonyl.ru/points-engine/internal/common"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type recordRequest struct {
	Type        string   `json:"type" validate:"required,max=64"`
	Severity    Severity `json:"severity" validate:"required,oneof=low medium high critical"`
	Description string   `json:"description" validate:"max=1000"`
}

type banRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
	Hours  *int   `json:"hours" validate:"omitempty,gt=0"`
}

// HandleStatus — GET /users/{id}/abuse, с последними нарушениями.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	status, err := h.service.Status(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.service.Logs(r.Context(), userID, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if logs == nil {
		logs = []*Log{}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"logs":   logs,
	})
}

// HandleRecord — POST /users/{id}/abuse
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req recordRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	l, err := h.service.RecordAbuse(r.Context(), userID, req.Type, req.Severity, req.Description)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, l)
}

// HandleFlagged — GET /users/flagged?page=&limit=
func (h *Handler) HandleFlagged(w http.ResponseWriter, r *http.Request) {
	page := common.QueryPage(r)
	users, total, err := h.service.Flagged(r.Context(), page)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if users == nil {
		users = []*FlaggedUser{}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": total,
		"page":  page,
	})
}

// HandleBan — POST /users/{id}/ban; без hours — перманентный бан.
func (h *Handler) HandleBan(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req banRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.service.Ban(r.Context(), userID, req.Reason, req.Hours, common.OperatorID(r.Context()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, b)
}

// HandleUnban — POST /users/{id}/unban
func (h *Handler) HandleUnban(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.service.Unban(r.Context(), userID, common.OperatorID(r.Context()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, b)
}
