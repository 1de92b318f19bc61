package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/niksmo/storefront/internal/core/port"
)

// GET v1/products/{product_id} (200 OK, 404 Not found)

type ProductsHandler struct {
	viewer port.ProductViewer
}

func RegisterProducts(mux *http.ServeMux, viewer port.ProductViewer) {
	h := ProductsHandler{viewer}
	mux.HandleFunc("GET /v1/products/{product_id}", h.GetProduct)
}

func (h ProductsHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	const op = "ProductsHandler.GetProduct"
	productID := r.PathValue("product_id")
	log := slog.With("op", op, "productID", productID)

	detail, err := h.viewer.ProductDetail(r.Context(), productID)
	if err != nil {
		writeError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, toProduct(detail), log)
	log.Debug("served", "nSubstitutes", len(detail.Substitutes))
}

// GET v1/users/{user_id}/cart (200 OK)
// POST v1/users/{user_id}/cart/items JSON {"product_id"} (204 No content, 404, 409)
// PATCH v1/users/{user_id}/cart/items/{product_id} JSON {"action"} (204 No content, 400, 404, 409)
// DELETE v1/users/{user_id}/cart/items/{product_id} (204 No content)

type CartHandler struct {
	cart port.CartManager
}

func RegisterCart(mux *http.ServeMux, cart port.CartManager) {
	h := CartHandler{cart}
	mux.HandleFunc("GET /v1/users/{user_id}/cart", h.GetCart)
	mux.HandleFunc("POST /v1/users/{user_id}/cart/items", h.PostItem)
	mux.HandleFunc("PATCH /v1/users/{user_id}/cart/items/{product_id}", h.PatchItem)
	mux.HandleFunc("DELETE /v1/users/{user_id}/cart/items/{product_id}", h.DeleteItem)
}

func (h CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	const op = "CartHandler.GetCart"
	userID := r.PathValue("user_id")
	log := slog.With("op", op, "userID", userID)

	cart, err := h.cart.Cart(r.Context(), userID)
	if err != nil {
		writeError(w, err, log)
		return
	}
	writeJSON(w, http.StatusOK, toCart(cart), log)
}

func (h CartHandler) PostItem(w http.ResponseWriter, r *http.Request) {
	const op = "CartHandler.PostItem"
	userID := r.PathValue("user_id")
	log := slog.With("op", op, "userID", userID)

	var req AddCartItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON data", http.StatusBadRequest)
		log.Warn("failed to parse JSON", "err", err)
		return
	}
	if req.ProductID == "" {
		http.Error(w, "product_id is required", http.StatusBadRequest)
		return
	}

	if err := h.cart.AddToCart(r.Context(), userID, req.ProductID); err != nil {
		writeError(w, err, log)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	log.Info("added to cart", "productID", req.ProductID)
}

func (h CartHandler) PatchItem(w http.ResponseWriter, r *http.Request) {
	const op = "CartHandler.PatchItem"
	userID, productID := r.PathValue("user_id"), r.PathValue("product_id")
	log := slog.With("op", op, "userID", userID, "productID", productID)

	var req UpdateCartItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON data", http.StatusBadRequest)
		log.Warn("failed to parse JSON", "err", err)
		return
	}

	var err error
	switch req.Action {
	case actionIncrease:
		err = h.cart.IncreaseCartItem(r.Context(), userID, productID)
	case actionDecrease:
		err = h.cart.DecreaseCartItem(r.Context(), userID, productID)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		log.Warn("unknown action", "action", req.Action)
		return
	}
	if err != nil {
		writeError(w, err, log)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	log.Info("cart item updated", "action", req.Action)
}

func (h CartHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	const op = "CartHandler.DeleteItem"
	userID, productID := r.PathValue("user_id"), r.PathValue("product_id")
	log := slog.With("op", op, "userID", userID, "productID", productID)

	if err := h.cart.RemoveCartItem(r.Context(), userID, productID); err != nil {
		writeError(w, err, log)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	log.Info("cart item removed")
}

// POST v1/users/{user_id}/checkout JSON shipping (201 Created, 400, 404, 409)
// GET v1/orders/{order_id} (200 OK, 404 Not found)

type OrdersHandler struct {
	placer port.OrderPlacer
	getter port.OrderGetter
}

func RegisterOrders(
	mux *http.ServeMux, placer port.OrderPlacer, getter port.OrderGetter,
) {
	h := OrdersHandler{placer, getter}
	mux.HandleFunc("POST /v1/users/{user_id}/checkout", h.PostCheckout)
	mux.HandleFunc("GET /v1/orders/{order_id}", h.GetOrder)
}

func (h OrdersHandler) PostCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "OrdersHandler.PostCheckout"
	userID := r.PathValue("user_id")
	log := slog.With("op", op, "userID", userID)

	var shipping Shipping
	err := json.NewDecoder(r.Body).Decode(&shipping)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON data", http.StatusBadRequest)
		log.Warn("failed to parse JSON", "err", err)
		return
	}

	summary, err := h.placer.PlaceOrder(r.Context(), userID, shipping.toDomain())
	if err != nil {
		writeError(w, err, log)
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutResult{
		OrderID:   summary.ID,
		Total:     summary.Total,
		LineCount: summary.LineCount,
	}, log)
	log.Info("order placed", "orderID", summary.ID)
}

func (h OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	const op = "OrdersHandler.GetOrder"
	orderID := r.PathValue("order_id")
	log := slog.With("op", op, "orderID", orderID)

	order, err := h.getter.Order(r.Context(), orderID)
	if err != nil {
		writeError(w, err, log)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(order), log)
}
