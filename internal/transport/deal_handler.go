package transport

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"zerosaver/internal/clock"
	"zerosaver/internal/domain"
	"zerosaver/internal/middleware"
	"zerosaver/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PublishDealRequest represents the payload a vendor sends to list a deal.
// Expiry is given either as an absolute time or as minutes from now.
type PublishDealRequest struct {
	ID               string     `json:"id" validate:"omitempty,max=64"`
	VendorName       string     `json:"vendor_name" validate:"required,max=255"`
	Title            string     `json:"title" validate:"required,max=255"`
	Description      string     `json:"description" validate:"max=2000"`
	ImageURL         string     `json:"image_url" validate:"omitempty,url"`
	Category         string     `json:"category" validate:"required,max=100"`
	Diet             []string   `json:"diet" validate:"dive,required"`
	Tags             []string   `json:"tags" validate:"dive,required"`
	Allergens        []string   `json:"allergens" validate:"dive,required"`
	ColdChain        bool       `json:"cold_chain"`
	OriginalPrice    float64    `json:"original_price" validate:"gte=0"`
	Price            float64    `json:"price" validate:"gt=0"`
	Quantity         int        `json:"quantity" validate:"gte=1"`
	MinOrderQty      int        `json:"min_order_qty" validate:"gte=0"`
	DistanceKm       float64    `json:"distance_km" validate:"gte=0"`
	PickupAddress    string     `json:"pickup_address" validate:"max=500"`
	PickupNotes      string     `json:"pickup_notes" validate:"max=1000"`
	PickupStart      *time.Time `json:"pickup_start"`
	PickupEnd        *time.Time `json:"pickup_end"`
	BestBefore       *time.Time `json:"best_before"`
	ExpiresAt        *time.Time `json:"expires_at" validate:"required_without=ExpiresInMinutes"`
	ExpiresInMinutes int        `json:"expires_in_minutes" validate:"required_without=ExpiresAt,gte=0"`
}

// RestockRequest represents the payload of a restock
type RestockRequest struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=10000"`
}

// DealResponse is a deal as shown to browsers
type DealResponse struct {
	domain.Deal
	Diet        []string `json:"diet"`
	MinutesLeft int      `json:"minutes_left"`
}

// DealListResponse wraps query results
type DealListResponse struct {
	Deals []DealResponse `json:"deals"`
	Count int            `json:"count"`
}

// DealHandler handles HTTP requests for deal operations
type DealHandler struct {
	dealService service.DealService
	clock       clock.Clock
	logger      *zap.Logger
}

// NewDealHandler creates a new DealHandler
func NewDealHandler(dealService service.DealService, clk clock.Clock, logger *zap.Logger) *DealHandler {
	return &DealHandler{
		dealService: dealService,
		clock:       clk,
		logger:      logger,
	}
}

// RegisterRoutes registers all deal routes
func (h *DealHandler) RegisterRoutes(r chi.Router, identity func(http.Handler) http.Handler) {
	r.Route("/api/deals", func(r chi.Router) {
		// Browsing is public
		r.Get("/", h.Query)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(identity)
			r.Use(middleware.RequireRole([]string{middleware.RoleVendor}, h.logger))
			r.Post("/", h.Publish)
			r.Post("/{id}/restock", h.Restock)
		})
	})
}

// Query handles GET /api/deals
func (h *DealHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.Filter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Diet:     q.Get("diet"),
	}

	if raw := strings.TrimSpace(q.Get("max_km")); raw != "" {
		maxKm, err := strconv.ParseFloat(raw, 64)
		if err != nil || maxKm < 0 {
			middleware.RespondWithValidationErrors(w, []middleware.ValidationError{
				{Field: "max_km", Message: "Value must be a non-negative number"},
			})
			return
		}
		filter.MaxKm = maxKm
	}

	deals := h.dealService.Query(filter)
	now := h.clock.Now()

	resp := DealListResponse{Deals: make([]DealResponse, 0, len(deals)), Count: len(deals)}
	for _, d := range deals {
		resp.Deals = append(resp.Deals, toDealResponse(d, now))
	}
	middleware.RespondWithJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/deals/{id}
func (h *DealHandler) Get(w http.ResponseWriter, r *http.Request) {
	deal, err := h.dealService.Get(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, toDealResponse(deal, h.clock.Now()))
}

// Publish handles POST /api/deals
func (h *DealHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishDealRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	vendorID, _ := middleware.GetActorID(r.Context())
	now := h.clock.Now()

	deal, err := h.dealService.Publish(r.Context(), req.toDeal(vendorID, now))
	if err != nil {
		h.logger.Debug("Publish failed", zap.String("vendor_id", vendorID), zap.Error(err))
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("Deal listed", zap.String("deal_id", deal.ID), zap.String("vendor_id", vendorID))
	middleware.RespondWithJSON(w, http.StatusCreated, toDealResponse(deal, now))
}

// Restock handles POST /api/deals/{id}/restock. Vendors may only restock
// their own deals.
func (h *DealHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	id := chi.URLParam(r, "id")
	vendorID, _ := middleware.GetActorID(r.Context())

	current, err := h.dealService.Get(id)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	if current.VendorID != vendorID {
		h.logger.Warn("Restock of foreign deal refused",
			zap.String("deal_id", id),
			zap.String("vendor_id", vendorID),
		)
		middleware.RespondWithError(w, http.StatusForbidden, "deal belongs to another vendor")
		return
	}

	deal, err := h.dealService.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, toDealResponse(deal, h.clock.Now()))
}

func (req PublishDealRequest) toDeal(vendorID string, now time.Time) domain.Deal {
	deal := domain.Deal{
		ID:            req.ID,
		VendorID:      vendorID,
		VendorName:    req.VendorName,
		Title:         req.Title,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		Category:      req.Category,
		DietTags:      req.Diet,
		Tags:          req.Tags,
		Allergens:     req.Allergens,
		ColdChain:     req.ColdChain,
		OriginalPrice: req.OriginalPrice,
		Price:         req.Price,
		Quantity:      req.Quantity,
		MinOrderQty:   req.MinOrderQty,
		DistanceKm:    req.DistanceKm,
		PickupAddress: req.PickupAddress,
		PickupNotes:   req.PickupNotes,
		PickupStart:   timeOrZero(req.PickupStart),
		PickupEnd:     timeOrZero(req.PickupEnd),
		BestBefore:    timeOrZero(req.BestBefore),
		ExpiresAt:     timeOrZero(req.ExpiresAt),
	}
	if deal.ExpiresAt.IsZero() && req.ExpiresInMinutes > 0 {
		deal.ExpiresAt = now.Add(time.Duration(req.ExpiresInMinutes) * time.Minute)
	}
	return deal
}

func toDealResponse(d domain.Deal, now time.Time) DealResponse {
	return DealResponse{
		Deal:        d,
		Diet:        d.Diets(),
		MinutesLeft: d.MinutesLeft(now),
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// decode reads and validates a JSON body, writing the 400 response itself
// when it fails.
func decode(w http.ResponseWriter, r *http.Request, v interface{}, logger *zap.Logger) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
