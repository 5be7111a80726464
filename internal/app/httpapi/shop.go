package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/catalog"
	"github.com/R3E-Network/storefront/internal/app/services/orders"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := decodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	session, err := h.app.Auth.Register(r.Context(), payload.Email, payload.Password, payload.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := decodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	session, err := h.app.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Auth.Me(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func productFilter(r *http.Request) catalog.Filter {
	q := r.URL.Query()
	return catalog.Filter{
		CategoryID: strings.TrimSpace(q.Get("category")),
		Search:     strings.TrimSpace(q.Get("q")),
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
	}
}

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.app.Catalog.ListProducts(r.Context(), productFilter(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"], false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.app.Catalog.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *handler) viewCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.app.Carts.View(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) clearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.app.Carts.Clear(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	if payload.Quantity == 0 {
		payload.Quantity = 1
	}
	view, err := h.app.Carts.AddItem(r.Context(), userID(r), payload.ProductID, payload.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity *int `json:"quantity"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	if payload.Quantity == nil {
		h.fail(w, r, service.RequiredError("quantity"))
		return
	}
	view, err := h.app.Carts.UpdateItem(r.Context(), userID(r), mux.Vars(r)["productID"], *payload.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.app.Carts.RemoveItem(r.Context(), userID(r), mux.Vars(r)["productID"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Orders.List(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) checkout(w http.ResponseWriter, r *http.Request) {
	var payload orders.CheckoutRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.app.Orders.Checkout(r.Context(), userID(r), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.app.Orders.Get(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) listWishlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.app.Wishlist.List(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) addWishlist(w http.ResponseWriter, r *http.Request) {
	entry, err := h.app.Wishlist.Add(r.Context(), userID(r), mux.Vars(r)["productID"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handler) removeWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Wishlist.Remove(r.Context(), userID(r), mux.Vars(r)["productID"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateCoupon quotes a code against the caller's current cart.
func (h *handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.app.Carts.View(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quote, err := h.app.Coupons.Validate(r.Context(), payload.Code, view.Subtotal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
