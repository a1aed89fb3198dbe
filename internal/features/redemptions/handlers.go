package redemptions

import (
	"net/http"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/features/abuse"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestBody struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
	Stars  int64 `json:"stars" validate:"required,gt=0"`
}

type approveBody struct {
	Note string `json:"note" validate:"max=1000"`
}

type flagBody struct {
	Reason   string         `json:"reason" validate:"required,max=1000"`
	Severity abuse.Severity `json:"severity" validate:"required,oneof=high critical"`
}

// HandleList — GET /redemptions?status=&page=&limit=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var status *Status
	if v := r.URL.Query().Get("status"); v != "" {
		st := Status(v)
		status = &st
	}
	page := common.QueryPage(r)
	list, total, err := h.service.List(r.Context(), status, page)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*Redemption{}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"redemptions": list,
		"total":       total,
		"page":        page,
	})
}

// HandleRequest — POST /redemptions
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := common.DecodeJSON(r, &body); err != nil {
		common.WriteError(w, err)
		return
	}
	red, err := h.service.Request(r.Context(), body.UserID, body.Stars)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, red)
}

// HandleGet — GET /redemptions/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	red, err := h.service.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, red)
}

// HandleApprove — POST /redemptions/{id}/approve; тело необязательно.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var body approveBody
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &body); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	red, err := h.service.Approve(r.Context(), id, body.Note, common.OperatorID(r.Context()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, red)
}

// HandleFlag — POST /redemptions/{id}/flag
func (h *Handler) HandleFlag(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var body flagBody
	if err := common.DecodeJSON(r, &body); err != nil {
		common.WriteError(w, err)
		return
	}
	red, err := h.service.Flag(r.Context(), id, body.Reason, body.Severity, common.OperatorID(r.Context()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, red)
}
