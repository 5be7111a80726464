// Package httpapi exposes the storefront over JSON/HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/storefront/internal/app"
	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/metrics"
	"github.com/R3E-Network/storefront/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Options tunes the router.
type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns the storefront router with its middleware chain.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("http")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	authn := newAuthenticator(application.Auth, log)
	limiter := newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, log)

	api := r.NewRoute().Subrouter()
	api.Use(authn.optional, limiter.middleware)

	api.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.listCategories).Methods(http.MethodGet)

	user := api.NewRoute().Subrouter()
	user.Use(requireUser)
	user.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	user.HandleFunc("/cart", h.viewCart).Methods(http.MethodGet)
	user.HandleFunc("/cart", h.clearCart).Methods(http.MethodDelete)
	user.HandleFunc("/cart/items", h.addCartItem).Methods(http.MethodPost)
	user.HandleFunc("/cart/items/{productID}", h.updateCartItem).Methods(http.MethodPut)
	user.HandleFunc("/cart/items/{productID}", h.removeCartItem).Methods(http.MethodDelete)
	user.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	user.HandleFunc("/orders", h.checkout).Methods(http.MethodPost)
	user.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	user.HandleFunc("/wishlist", h.listWishlist).Methods(http.MethodGet)
	user.HandleFunc("/wishlist/{productID}", h.addWishlist).Methods(http.MethodPost)
	user.HandleFunc("/wishlist/{productID}", h.removeWishlist).Methods(http.MethodDelete)
	user.HandleFunc("/coupons/validate", h.validateCoupon).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(requireUser, requireAdmin)
	admin.HandleFunc("/products", h.adminListProducts).Methods(http.MethodGet)
	admin.HandleFunc("/products", h.createProduct).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id}", h.updateProduct).Methods(http.MethodPut)
	admin.HandleFunc("/products/{id}", h.deleteProduct).Methods(http.MethodDelete)
	admin.HandleFunc("/categories", h.createCategory).Methods(http.MethodPost)
	admin.HandleFunc("/orders", h.adminListOrders).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}/status", h.updateOrderStatus).Methods(http.MethodPut)
	admin.HandleFunc("/coupons", h.listCoupons).Methods(http.MethodGet)
	admin.HandleFunc("/coupons", h.createCoupon).Methods(http.MethodPost)
	admin.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}/active", h.setUserActive).Methods(http.MethodPut)
	admin.HandleFunc("/abandonment/stats", h.abandonmentStats).Methods(http.MethodGet)
	admin.HandleFunc("/abandonment/scan", h.abandonmentScan).Methods(http.MethodPost)
	admin.HandleFunc("/abandonment/cleanup", h.abandonmentCleanup).Methods(http.MethodPost)
	admin.HandleFunc("/scheduler", h.schedulerStatus).Methods(http.MethodGet)
	admin.HandleFunc("/scheduler/stop-all", h.schedulerStopAll).Methods(http.MethodPost)
	admin.HandleFunc("/scheduler/{name}/start", h.schedulerStart).Methods(http.MethodPost)
	admin.HandleFunc("/scheduler/{name}/stop", h.schedulerStop).Methods(http.MethodPost)
	admin.HandleFunc("/scheduler/{name}/run", h.schedulerRun).Methods(http.MethodPost)
	admin.HandleFunc("/mail/verify", h.mailVerify).Methods(http.MethodPost)
	admin.HandleFunc("/system", h.systemInfo).Methods(http.MethodGet)

	var out http.Handler = r
	out = newCORS(opts.AllowedOrigins).handler(out)
	out = requestLogger(log)(out)
	out = metrics.InstrumentHandler(out)
	return out
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case service.IsNotFound(err):
		return http.StatusNotFound
	case service.IsValidationError(err):
		return http.StatusBadRequest
	case service.IsConflict(err):
		return http.StatusConflict
	case service.IsUnauthorized(err):
		return http.StatusUnauthorized
	case service.IsForbidden(err):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Internal errors are logged and
// their detail withheld from the client.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Error("request failed")
		writeError(w, status, errors.New("internal error"))
		return
	}
	writeError(w, status, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return service.NewValidationError("body", "is empty")
		}
		return service.NewValidationError("body", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
