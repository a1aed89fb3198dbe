// Package battles — handlers.go: HTTP-эндпоинты батлов.
package battles

import (
	"net/http"
	"time"

	"serotonyl.ru/points-engine/internal/common"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type battleRequest struct {
	Name      *string    `json:"name" validate:"omitempty,max=255"`
	Team1     *string    `json:"team1" validate:"omitempty,max=255"`
	Team2     *string    `json:"team2" validate:"omitempty,max=255"`
	EventDate *time.Time `json:"eventDate"`
	Sport     *string    `json:"sport" validate:"omitempty,max=64"`
	League    *string    `json:"league" validate:"omitempty,max=128"`
	PotAmount *int64     `json:"potAmount"`
}

func (r battleRequest) input() BattleInput {
	return BattleInput{
		Name: r.Name, Team1: r.Team1, Team2: r.Team2, EventDate: r.EventDate,
		Sport: r.Sport, League: r.League, PotAmount: r.PotAmount,
	}
}

type joinRequest struct {
	UserID     int64  `json:"userId" validate:"required,gt=0"`
	Prediction Result `json:"prediction" validate:"required,oneof=1 n 2"`
}

type resolveRequest struct {
	Result Result `json:"result" validate:"required,oneof=1 n 2"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// HandleList — GET /battles?status=&page=&limit=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var status *Status
	if v := r.URL.Query().Get("status"); v != "" {
		st := Status(v)
		status = &st
	}
	page := common.QueryPage(r)
	battles, total, err := h.service.List(r.Context(), status, page)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if battles == nil {
		battles = []*Battle{}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"battles": battles,
		"total":   total,
		"page":    page,
	})
}

// HandleCreate — POST /battles
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req battleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.service.Create(r.Context(), req.input())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, b)
}

// HandleGet — GET /battles/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, b)
}

// HandleParticipants — GET /battles/{id}/participants
func (h *Handler) HandleParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	ps, err := h.service.Participants(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if ps == nil {
		ps = []*Participant{}
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"participants": ps})
}

// HandleUpdate — PUT /battles/{id}; отсутствующие поля не меняются.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req battleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.service.Update(r.Context(), id, req.input())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, b)
}

// HandleDelete — DELETE /battles/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleJoin — POST /battles/{id}/join
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req joinRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.service.Join(r.Context(), id, req.UserID, req.Prediction)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, p)
}

// HandleResolve — POST /battles/{id}/resolve
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req resolveRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	s, err := h.service.Resolve(r.Context(), id, req.Result, common.OperatorID(r.Context()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, s)
}

// HandleCancel — POST /battles/{id}/cancel
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathInt64(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req cancelRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	s, err := h.service.Cancel(r.Context(), id, req.Reason, common.OperatorID(r.Context()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, s)
}

// HandleGenerate — POST /battles/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Generate(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, report)
}

// HandleAutoResolve — POST /battles/auto-resolve
func (h *Handler) HandleAutoResolve(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.AutoResolve(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, report)
}
