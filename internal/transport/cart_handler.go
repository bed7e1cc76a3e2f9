package transport

import (
	"net/http"

	"zerosaver/internal/domain"
	"zerosaver/internal/middleware"
	"zerosaver/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ReserveRequest represents the payload of a reservation. A missing quantity
// reserves one unit.
type ReserveRequest struct {
	DealID   string `json:"deal_id" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"omitempty,gte=1,lte=100"`
}

// SetQuantityRequest represents the new quantity of a cart line
type SetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=100"`
}

// ReserveResponse returns the affected line together with the whole cart
type ReserveResponse struct {
	Line domain.CartLine `json:"line"`
	Cart service.Cart    `json:"cart"`
}

// OrderListResponse wraps a customer's order history
type OrderListResponse struct {
	Orders []domain.Order `json:"orders"`
	Count  int            `json:"count"`
}

// LostStockResponse reports units that could not be returned to retired deals
type LostStockResponse struct {
	Deals map[string]int `json:"deals"`
	Total int            `json:"total"`
}

// CartHandler handles HTTP requests for cart and order operations
type CartHandler struct {
	cartService service.CartService
	logger      *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(cartService service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		logger:      logger,
	}
}

// RegisterRoutes registers the customer and admin routes. reserveLimiter may
// be nil.
func (h *CartHandler) RegisterRoutes(r chi.Router, identity func(http.Handler) http.Handler, reserveLimiter func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(identity)
		r.Use(middleware.RequireRole([]string{middleware.RoleCustomer}, h.logger))

		r.Route("/api/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.Clear)
			r.Group(func(r chi.Router) {
				if reserveLimiter != nil {
					r.Use(reserveLimiter)
				}
				r.Post("/items", h.Reserve)
				r.Put("/items/{dealID}", h.SetQuantity)
			})
			r.Delete("/items/{dealID}", h.Cancel)
			r.Post("/checkout", h.Checkout)
		})
		r.Get("/api/orders", h.ListOrders)
	})

	r.Group(func(r chi.Router) {
		r.Use(identity)
		r.Use(middleware.RequireAdmin(h.logger))
		r.Get("/api/admin/lost-stock", h.LostStock)
	})
}

// GetCart handles GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID, _ := middleware.GetActorID(r.Context())
	middleware.RespondWithJSON(w, http.StatusOK, h.cartService.Cart(customerID))
}

// Reserve handles POST /api/cart/items
func (h *CartHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	customerID, _ := middleware.GetActorID(r.Context())
	line, err := h.cartService.Reserve(r.Context(), customerID, req.DealID, req.Quantity)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ReserveResponse{
		Line: line,
		Cart: h.cartService.Cart(customerID),
	})
}

// Cancel handles DELETE /api/cart/items/{dealID}
func (h *CartHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	customerID, _ := middleware.GetActorID(r.Context())
	if err := h.cartService.Cancel(r.Context(), customerID, chi.URLParam(r, "dealID")); err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, h.cartService.Cart(customerID))
}

// SetQuantity handles PUT /api/cart/items/{dealID}
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req SetQuantityRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	customerID, _ := middleware.GetActorID(r.Context())
	line, err := h.cartService.SetQuantity(r.Context(), customerID, chi.URLParam(r, "dealID"), req.Quantity)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ReserveResponse{
		Line: line,
		Cart: h.cartService.Cart(customerID),
	})
}

// Clear handles DELETE /api/cart
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	customerID, _ := middleware.GetActorID(r.Context())
	if err := h.cartService.Clear(r.Context(), customerID); err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout handles POST /api/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	customerID, _ := middleware.GetActorID(r.Context())
	order, err := h.cartService.Checkout(r.Context(), customerID)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /api/orders
func (h *CartHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID, _ := middleware.GetActorID(r.Context())
	orders := h.cartService.Orders(customerID)
	middleware.RespondWithJSON(w, http.StatusOK, OrderListResponse{Orders: orders, Count: len(orders)})
}

// LostStock handles GET /api/admin/lost-stock
func (h *CartHandler) LostStock(w http.ResponseWriter, r *http.Request) {
	lost := h.cartService.LostStock()
	total := 0
	for _, n := range lost {
		total += n
	}
	middleware.RespondWithJSON(w, http.StatusOK, LostStockResponse{Deals: lost, Total: total})
}
