package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
	"github.com/pyoush/e-commerce-hooks-store/internal/identity"
	"github.com/pyoush/e-commerce-hooks-store/internal/inventory"
	"github.com/pyoush/e-commerce-hooks-store/internal/mirror"
	"github.com/pyoush/e-commerce-hooks-store/internal/store"
)

// SessionResolver is what the handler needs from the identity provider.
type SessionResolver interface {
	IssueAnonymous(ctx context.Context) (identity.Session, error)
	Exchange(ctx context.Context, credential string) (identity.Session, error)
	Resolve(ctx context.Context, token string) (string, error)
}

type Handler struct {
	Service  *inventory.Service
	Mirrors  *mirror.Synchronizer
	Identity SessionResolver
}

type principalKey struct{}

func principalFrom(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}

func (h *Handler) Register(r *chi.Mux) {
	r.Post("/sessions", h.createSession)
	r.Post("/sessions/exchange", h.exchangeSession)

	r.Group(func(r chi.Router) {
		r.Use(h.withPrincipal)
		r.Get("/products", h.listProducts)
		r.Post("/products", h.createProduct)
		r.Put("/products/{id}", h.updateProduct)
		r.Delete("/products/{id}", h.deleteProduct)
		r.Get("/orders", h.listOrders)
		r.Post("/orders/simulate", h.simulateOrder)
		r.Post("/orders/{id}/fulfill", h.fulfillOrder)
		r.Get("/metrics", h.getMetrics)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, catalog.ErrInsufficientStock):
		code = http.StatusConflict
	case errors.Is(err, inventory.ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, identity.ErrUnknownSession), errors.Is(err, identity.ErrEmptyCredential):
		code = http.StatusUnauthorized
	}
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// withPrincipal resolves the bearer token into the principal namespace.
func (h *Handler) withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		principal, err := h.Identity.Resolve(r.Context(), token)
		if err != nil {
			writeErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.Identity.IssueAnonymous(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

type exchangeReq struct {
	Credential string `json:"credential"`
}

func (h *Handler) exchangeSession(w http.ResponseWriter, r *http.Request) {
	var req exchangeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.Identity.Exchange(ctx, req.Credential)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

type productReq struct {
	Name  string          `json:"name"`
	Stock int             `json:"stock"`
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	p, err := h.Service.CreateProduct(ctx, principalFrom(ctx), inventory.ProductInput(req))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	p, err := h.Service.UpdateProduct(ctx, principalFrom(ctx), chi.URLParam(r, "id"), inventory.ProductInput(req))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Service.DeleteProduct(ctx, principalFrom(ctx), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Mirrors.Products(principalFrom(r.Context())))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Mirrors.Orders(principalFrom(r.Context())))
}

func (h *Handler) simulateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	o, err := h.Service.SimulateOrder(ctx, principalFrom(ctx))
	if err != nil {
		writeErr(w, err)
		return
	}
	if o == nil {
		// nothing to order against
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) fulfillOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.FulfillOrder(ctx, principalFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) getMetrics(w http.ResponseWriter, r *http.Request) {
	sum, _ := h.Mirrors.Metrics(r.Context(), principalFrom(r.Context()))
	writeJSON(w, http.StatusOK, sum)
}
