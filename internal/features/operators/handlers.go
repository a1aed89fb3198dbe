package operators

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/points-engine/internal/common"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type loginRequest struct {
	OperatorID int64  `json:"operatorId" validate:"required,gt=0"`
	Password   string `json:"password" validate:"required"`
}

// HandleLogin — POST /auth/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	session, err := h.service.Login(r.Context(), req.OperatorID, req.Password)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, session)
}

// HandleLogout — POST /auth/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), BearerToken(r)); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireOperator пропускает запрос только с живой сессией
// и кладёт ID оператора в контекст.
func (h *Handler) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operatorID, err := h.service.Authenticate(r.Context(), BearerToken(r))
		if err != nil {
			log.WithFields(log.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
			}).WithError(err).Debug("Запрос без действующей сессии")
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithOperatorID(r.Context(), operatorID)))
	})
}

// BearerToken достаёт токен из заголовка Authorization: Bearer <token>.
func BearerToken(r *http.Request) string {
	const prefix = "bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
