package payment

import (
	"errors"
	"net/http"

	"ordersaga/internal/platform/httpserver"
	"ordersaga/internal/platform/observability"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// API serves read-only payment queries.
type API struct {
	service *Service
	logger  observability.Logger
}

func NewAPI(service *Service, logger observability.Logger) *API {
	return &API{service: service, logger: logger}
}

func (a *API) Routes(r chi.Router) {
	r.Route("/api/payments", func(r chi.Router) {
		r.Get("/", a.list)
		r.Get("/{id}", a.get)
		r.Get("/order/{orderId}", a.getByOrder)
	})
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpserver.Int64Param(r, "id")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.service.Get(r.Context(), id)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusOK, p)
}

func (a *API) getByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpserver.Int64Param(r, "orderId")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.service.GetByOrder(r.Context(), orderID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusOK, p)
}

// list filters by userId or status when either query parameter is present.
func (a *API) list(w http.ResponseWriter, r *http.Request) {
	var (
		payments []Payment
		err      error
	)

	query := r.URL.Query()
	switch {
	case query.Has("userId"):
		userID, parseErr := httpserver.Int64Param(r, "userId")
		if parseErr != nil {
			httpserver.RespondError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		payments, err = a.service.ListByUser(r.Context(), userID)
	case query.Has("status"):
		status, parseErr := ParseStatus(query.Get("status"))
		if parseErr != nil {
			httpserver.RespondError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		payments, err = a.service.ListByStatus(r.Context(), status)
	default:
		payments, err = a.service.List(r.Context())
	}
	if err != nil {
		a.respondError(w, err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpserver.RespondJSON(w, http.StatusOK, payments)
}

func (a *API) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error("❌ Payment request failed", zap.Error(err))
		httpserver.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
