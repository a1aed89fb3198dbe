// Package ledger — handlers.go: баланс, история и ручные корректировки.
package ledger

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

type adjustRequest struct {
	Amount int64  `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type purchaseRequest struct {
	UserID    int64  `json:"userId" validate:"required,gt=0"`
	Points    int64  `json:"points" validate:"required,gt=0"`
	Revenue   int64  `json:"revenue" validate:"required,gt=0"`
	Kind      string `json:"kind" validate:"required,oneof=purchase ton_purchase"`
	Reference string `json:"reference" validate:"required,max=128"`
}

// HandleBalance — GET /users/{id}/balance
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	balance, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"userId":    userID,
		"balance":   balance,
		"formatted": common.FormatPoints(balance),
	})
}

// HandleHistory — GET /users/{id}/ledger?page=&limit=
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page := common.QueryPage(r)
	entries, total, err := h.service.History(r.Context(), userID, page)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"page":    page,
	})
}

// HandleAdjust — POST /users/{id}/adjustments
func (h *Handler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req adjustRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	adj, err := h.service.Adjust(r.Context(), userID, req.Amount, req.Reason, common.OperatorID(r.Context()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, adj)
}

// HandlePurchase — POST /purchases, колбэк платёжного шлюза.
func (h *Handler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	entry, err := h.service.CreditPurchase(r.Context(), Purchase{
		UserID:    req.UserID,
		Points:    req.Points,
		Revenue:   req.Revenue,
		Kind:      req.Kind,
		Reference: req.Reference,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, entry)
}
