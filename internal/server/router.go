// Package server собирает HTTP API движка на chi.
// Все маршруты, кроме входа и проверки здоровья, требуют сессию оператора.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-engine/internal/common"
	"serotonyl.ru/points-engine/internal/features/abuse"
	"serotonyl.ru/points-engine/internal/features/battles"
	"serotonyl.ru/points-engine/internal/features/ledger"
	"serotonyl.ru/points-engine/internal/features/operators"
	"serotonyl.ru/points-engine/internal/features/redemptions"
	"serotonyl.ru/points-engine/internal/features/revenue"
	"serotonyl.ru/points-engine/internal/server/middleware"
)

// Handlers — обработчики всех фич.
type Handlers struct {
	Operators   *operators.Handler
	Battles     *battles.Handler
	Redemptions *redemptions.Handler
	Abuse       *abuse.Handler
	Ledger      *ledger.Handler
	Revenue     *revenue.Handler
}

// HealthFunc проверяет зависимости (БД) для /healthz.
type HealthFunc func(ctx context.Context) error

// NewRouter регистрирует маршруты /api/v1.
func NewRouter(h Handlers, limiter *middleware.RateLimiter, health HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		common.WriteError(w, common.NotFound("маршрут"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", healthz(health))

		r.Post("/auth/login", h.Operators.HandleLogin)
		r.Post("/auth/logout", h.Operators.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.Operators.RequireOperator)

			r.Route("/battles", func(r chi.Router) {
				r.Get("/", h.Battles.HandleList)
				r.Post("/", h.Battles.HandleCreate)
				r.Post("/generate", h.Battles.HandleGenerate)
				r.Post("/auto-resolve", h.Battles.HandleAutoResolve)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Battles.HandleGet)
					r.Get("/participants", h.Battles.HandleParticipants)
					r.Put("/", h.Battles.HandleUpdate)
					r.Delete("/", h.Battles.HandleDelete)
					r.Post("/join", h.Battles.HandleJoin)
					r.Post("/resolve", h.Battles.HandleResolve)
					r.Post("/cancel", h.Battles.HandleCancel)
				})
			})

			r.Route("/redemptions", func(r chi.Router) {
				r.Get("/", h.Redemptions.HandleList)
				r.Post("/", h.Redemptions.HandleRequest)
				r.Get("/{id}", h.Redemptions.HandleGet)
				r.Post("/{id}/approve", h.Redemptions.HandleApprove)
				r.Post("/{id}/flag", h.Redemptions.HandleFlag)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/flagged", h.Abuse.HandleFlagged)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/abuse", h.Abuse.HandleStatus)
					r.Post("/abuse", h.Abuse.HandleRecord)
					r.Post("/ban", h.Abuse.HandleBan)
					r.Post("/unban", h.Abuse.HandleUnban)
					r.Get("/balance", h.Ledger.HandleBalance)
					r.Get("/ledger", h.Ledger.HandleHistory)
					r.Post("/adjustments", h.Ledger.HandleAdjust)
				})
			})

			r.Post("/purchases", h.Ledger.HandlePurchase)

			r.Get("/revenue", h.Revenue.HandleSummary)
			r.Post("/revenue", h.Revenue.HandleRecord)
			r.Post("/revenue/withdraw", h.Revenue.HandleWithdraw)
		})
	})

	return r
}

func healthz(check HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				log.WithError(err).Warn("Проверка здоровья не пройдена")
				common.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
