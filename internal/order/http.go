package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ordersaga/internal/platform/httpserver"
	"ordersaga/internal/platform/observability"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type API struct {
	service *Service
	logger  observability.Logger
}

func NewAPI(service *Service, logger observability.Logger) *API {
	return &API{service: service, logger: logger}
}

func (a *API) Routes(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Get("/{id}", a.get)
		r.Put("/{id}/approve", a.mutate(a.service.Approve))
		r.Put("/{id}/reject", a.mutate(a.service.Reject))
		r.Put("/{id}/cancel", a.mutate(a.service.Cancel))
	})
}

type createRequest struct {
	UserID     int64  `json:"userId"`
	OrderItems []Item `json:"orderItems"`
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	o, err := a.service.Create(r.Context(), req.UserID, req.OrderItems)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusCreated, o)
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpserver.Int64Param(r, "id")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := a.service.Get(r.Context(), id)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusOK, o)
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	var (
		orders []Order
		err    error
	)

	query := r.URL.Query()
	switch {
	case query.Has("userId"):
		userID, parseErr := httpserver.Int64Param(r, "userId")
		if parseErr != nil {
			httpserver.RespondError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		orders, err = a.service.ListByUser(r.Context(), userID)
	case query.Has("status"):
		status, parseErr := ParseStatus(query.Get("status"))
		if parseErr != nil {
			httpserver.RespondError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		orders, err = a.service.ListByStatus(r.Context(), status)
	default:
		orders, err = a.service.List(r.Context())
	}
	if err != nil {
		a.respondError(w, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpserver.RespondJSON(w, http.StatusOK, orders)
}

func (a *API) mutate(op func(ctx context.Context, id int64) (Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpserver.Int64Param(r, "id")
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}

		o, err := op(r.Context(), id)
		if err != nil {
			a.respondError(w, err)
			return
		}
		httpserver.RespondJSON(w, http.StatusOK, o)
	}
}

func (a *API) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInsufficientStock):
		httpserver.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrInvalidStatus):
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAvailabilityUnknown):
		httpserver.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.logger.Error("❌ Order request failed", zap.Error(err))
		httpserver.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
