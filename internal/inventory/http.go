package inventory

import (
	"errors"
	"net/http"

	"ordersaga/internal/platform/httpserver"
	"ordersaga/internal/platform/observability"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// API exposes the ledger over HTTP, including the read-only availability
// check the order service calls during approval.
type API struct {
	ledger Ledger
	logger observability.Logger
}

func NewAPI(ledger Ledger, logger observability.Logger) *API {
	return &API{ledger: ledger, logger: logger}
}

func (a *API) Routes(r chi.Router) {
	r.Route("/api/inventory", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Get("/check", a.check)
		r.Post("/reserve", a.reserve)
		r.Post("/release", a.release)
		r.Get("/product/{productId}", a.get)
		r.Put("/product/{productId}", a.setAvailable)
	})
}

func (a *API) check(w http.ResponseWriter, r *http.Request) {
	productID, quantity, ok := a.productAndQuantity(w, r)
	if !ok {
		return
	}

	available, err := a.ledger.CheckAvailability(r.Context(), productID, quantity)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusOK, available)
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	productID, quantity, ok := a.productAndQuantity(w, r)
	if !ok {
		return
	}

	record, err := a.ledger.Create(r.Context(), productID, quantity)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusCreated, record)
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	productID, err := httpserver.Int64Param(r, "productId")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := a.ledger.Get(r.Context(), productID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusOK, record)
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	records, err := a.ledger.List(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusOK, records)
}

func (a *API) setAvailable(w http.ResponseWriter, r *http.Request) {
	productID, quantity, ok := a.productAndQuantity(w, r)
	if !ok {
		return
	}

	record, err := a.ledger.SetAvailable(r.Context(), productID, quantity)
	if err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusOK, record)
}

func (a *API) reserve(w http.ResponseWriter, r *http.Request) {
	productID, quantity, ok := a.productAndQuantity(w, r)
	if !ok {
		return
	}

	if err := a.ledger.Reserve(r.Context(), productID, quantity); err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusOK, true)
}

func (a *API) release(w http.ResponseWriter, r *http.Request) {
	productID, quantity, ok := a.productAndQuantity(w, r)
	if !ok {
		return
	}

	if err := a.ledger.Release(r.Context(), productID, quantity); err != nil {
		a.respondError(w, err)
		return
	}
	httpserver.RespondJSON(w, http.StatusOK, true)
}

func (a *API) productAndQuantity(w http.ResponseWriter, r *http.Request) (int64, int32, bool) {
	productID, err := httpserver.Int64Param(r, "productId")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	quantity, err := httpserver.Int32Param(r, "quantity")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return productID, quantity, true
}

func (a *API) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrInsufficientStock):
		httpserver.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error("❌ Inventory request failed", zap.Error(err))
		httpserver.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
