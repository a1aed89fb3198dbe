// Package revenue — handlers.go: HTTP-эндпоинты выручки.
package revenue

import (
	"net/http"

	"serotonyl.ru/points-engine/internal/common"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type withdrawRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Note   string `json:"note" validate:"max=500"`
}

type recordRequest struct {
	Type     Type           `json:"type" validate:"required"`
	Amount   int64          `json:"amount" validate:"required,gt=0"`
	Metadata map[string]any `json:"metadata"`
}

// HandleRecord — POST /revenue: поступление, пришедшее мимо счетов пользователей.
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	entry, err := h.service.Record(r.Context(), req.Type, req.Amount, req.Metadata)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, entry)
}

// HandleSummary — GET /revenue?type=&page=&limit=
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	f := Filter{Page: common.QueryPage(r)}
	if v := r.URL.Query().Get("type"); v != "" {
		t := Type(v)
		f.Type = &t
	}
	summary, err := h.service.Summarize(r.Context(), f)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, summary)
}

// HandleWithdraw — POST /revenue/withdraw, заголовок Idempotency-Key необязателен.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.service.Withdraw(r.Context(), req.Amount, req.Note,
		r.Header.Get("Idempotency-Key"), common.OperatorID(r.Context()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}
