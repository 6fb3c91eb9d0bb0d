package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cart-order-system/internal/logger"
	"cart-order-system/internal/metrics"
	"cart-order-system/internal/models"
	"cart-order-system/internal/services/cart"
	"cart-order-system/internal/services/orderview"
	"cart-order-system/internal/services/pricing"
)

const (
	requestTimeout = 30 * time.Second
	healthTimeout  = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// Handler handles HTTP requests for the cart order service
type Handler struct {
	service *Service
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, m *metrics.Metrics, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		metrics: m,
		logger:  log,
	}
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.withLogging)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrUpdateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/stream", h.StreamOrders)
		r.Post("/delete", h.DeleteOrders)
		r.Post("/place", h.PlaceOrders)

		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.OrderDetail)
			r.Get("/stream", h.StreamOrder)
			r.Get("/price", h.ComputePrice)
			r.Delete("/", h.DeleteOrder)
			r.Post("/place", h.PlaceOrder)
			r.Post("/select", h.SelectOrder)

			r.Post("/products/{productID}", h.AddLine)
			r.Delete("/products/{productID}", h.RemoveLine)
			r.Delete("/products/{productID}/all", h.DeleteLine)
			r.Get("/products/{productID}/quantity", h.StreamQuantity)
			r.Post("/addons/{itemID}/toggle", h.ToggleAddOn)
			r.Post("/charges/{chargeID}/toggle", h.ToggleCharge)
		})
	})

	r.Get("/selected", h.SelectedOrder)
	r.Get("/selected/stream", h.StreamSelected)
	r.Get("/health", h.HealthCheck)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}
	return r
}

// CreateOrUpdateOrder handles POST /orders
func (h *Handler) CreateOrUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrUpdateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.service.CreateOrUpdateOrder(ctx, &req)
	if err != nil && result.Order.OrderID == 0 {
		h.fail(w, r, "order_save_failed", err)
		return
	}

	message := "Order updated"
	if result.Created {
		message = "Order created"
	}
	h.writeMutation(w, r, message, result, err)
}

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		h.fail(w, r, "validation_failed", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	views, err := h.service.ListOrders(ctx, q)
	if err != nil {
		h.fail(w, r, "order_list_failed", err)
		return
	}
	if views == nil {
		views = []models.OrderView{}
	}
	h.writeJSON(w, r, http.StatusOK, views)
}

// OrderDetail handles GET /orders/{orderID}
func (h *Handler) OrderDetail(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := h.service.OrderDetail(ctx, orderID)
	if err != nil {
		h.fail(w, r, "order_detail_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, view)
}

// ComputePrice handles GET /orders/{orderID}/price
func (h *Handler) ComputePrice(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.ComputePrice(ctx, orderID)
	if err != nil {
		h.fail(w, r, "price_compute_failed", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, report)
}

// DeleteOrder handles DELETE /orders/{orderID}
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}

	selected, err := h.service.DeleteOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, "order_delete_failed", err)
		return
	}
	h.writeMutation(w, r, "Order deleted", map[string]int{"selected_order_id": selected}, nil)
}

// PlaceOrder handles POST /orders/{orderID}/place
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}

	selected, err := h.service.PlaceOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, "order_place_failed", err)
		return
	}
	h.writeMutation(w, r, "Order placed", map[string]int{"selected_order_id": selected}, nil)
}

// DeleteOrders handles POST /orders/delete
func (h *Handler) DeleteOrders(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, "Orders deleted", h.service.DeleteOrders)
}

// PlaceOrders handles POST /orders/place
func (h *Handler) PlaceOrders(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, "Orders placed", h.service.PlaceOrders)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request, message string, op func(context.Context, []int) ([]int, error)) {
	var req models.BatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	succeeded, err := op(r.Context(), req.OrderIDs)
	if succeeded == nil {
		succeeded = []int{}
	}
	if err != nil {
		h.logger.Error("batch_failed", "Batch operation failed", logger.RequestID(r.Context()), err, map[string]interface{}{
			"order_ids": req.OrderIDs,
			"succeeded": succeeded,
		})
		h.writeJSON(w, r, statusFor(err), map[string]interface{}{
			"success":    false,
			"message":    err.Error(),
			"succeeded":  succeeded,
			"request_id": logger.RequestID(r.Context()),
		})
		return
	}
	h.writeMutation(w, r, message, map[string][]int{"succeeded": succeeded}, nil)
}

// SelectOrder handles POST /orders/{orderID}/select
func (h *Handler) SelectOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}

	if err := h.service.SelectOrder(r.Context(), orderID); err != nil {
		h.fail(w, r, "order_select_failed", err)
		return
	}
	h.writeMutation(w, r, "Order selected", map[string]int{"selected_order_id": orderID}, nil)
}

// SelectedOrder handles GET /selected
func (h *Handler) SelectedOrder(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]int{
		"selected_order_id": h.service.SelectedOrderID(r.Context()),
	})
}

// AddLine handles POST /orders/{orderID}/products/{productID}
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	h.line(w, r, "Product added", h.service.AddLine)
}

// RemoveLine handles DELETE /orders/{orderID}/products/{productID}
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	h.line(w, r, "Product removed", h.service.RemoveLine)
}

// DeleteLine handles DELETE /orders/{orderID}/products/{productID}/all
func (h *Handler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	h.line(w, r, "Product line deleted", h.service.DeleteLine)
}

func (h *Handler) line(w http.ResponseWriter, r *http.Request, message string, op func(context.Context, int, int) (cart.LineResult, error)) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}

	result, err := op(r.Context(), orderID, productID)
	if err != nil && !errors.Is(err, pricing.ErrDeltaFailed) {
		h.fail(w, r, "line_change_failed", err)
		return
	}
	h.writeMutation(w, r, message, result, err)
}

// ToggleAddOn handles POST /orders/{orderID}/addons/{itemID}/toggle
func (h *Handler) ToggleAddOn(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "itemID", "Add-on toggled", h.service.ToggleAddOn)
}

// ToggleCharge handles POST /orders/{orderID}/charges/{chargeID}/toggle
func (h *Handler) ToggleCharge(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "chargeID", "Charge toggled", h.service.ToggleCharge)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, param, message string, op func(context.Context, int, int) (cart.ToggleResult, error)) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, param)
	if !ok {
		return
	}

	result, err := op(r.Context(), orderID, itemID)
	if err != nil && !errors.Is(err, pricing.ErrDeltaFailed) {
		h.fail(w, r, "toggle_failed", err)
		return
	}
	h.writeMutation(w, r, message, result, err)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	err := h.service.HealthCheck(ctx)
	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "cart-service",
		"healthy":   err == nil,
	}

	status := http.StatusOK
	if err != nil {
		h.logger.Error("health_check_failed", "Database is unreachable", logger.RequestID(r.Context()), err, nil)
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}
	h.writeJSON(w, r, status, response)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "Content-Type must be application/json")
		return false
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", logger.RequestID(r.Context()), err, nil)
		h.writeErrorResponse(w, r, http.StatusBadRequest, "Invalid JSON format")
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || id <= 0 {
		h.writeErrorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", param))
		return 0, false
	}
	return id, true
}

func parseQuery(r *http.Request) (orderview.Query, error) {
	values := r.URL.Query()
	q := orderview.Query{Search: values.Get("search")}

	var err error
	if v := values.Get("view_all"); v != "" {
		if q.ViewAll, err = strconv.ParseBool(v); err != nil {
			return q, models.ValidationError{Field: "view_all", Message: "must be a boolean"}
		}
	}
	if v := values.Get("non_empty"); v != "" {
		if q.NonEmptyOnly, err = strconv.ParseBool(v); err != nil {
			return q, models.ValidationError{Field: "non_empty", Message: "must be a boolean"}
		}
	}
	if v := values.Get("order_type"); v != "" {
		if q.OrderType, err = models.ParseOrderType(v); err != nil {
			return q, err
		}
	}
	return q, nil
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrPersistenceFailed), errors.Is(err, models.ErrPriceInvariant):
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrAggregationFailed), errors.Is(err, pricing.ErrDeltaFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}

	h.logger.Error(action, "Request failed", logger.RequestID(r.Context()), err, map[string]interface{}{
		"status_code": status,
	})
	h.writeErrorResponse(w, r, status, message)
}

// writeMutation writes a successful mutation. A lagging price snapshot is
// reported as a warning next to the saved data.
func (h *Handler) writeMutation(w http.ResponseWriter, r *http.Request, message string, data interface{}, priceErr error) {
	response := map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	}
	if priceErr != nil {
		response["warning"] = priceErr.Error()
	}
	h.writeJSON(w, r, http.StatusOK, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", logger.RequestID(r.Context()), err, nil)
	}
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	h.writeJSON(w, r, statusCode, map[string]interface{}{
		"success":    false,
		"message":    message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": logger.RequestID(r.Context()),
	})
}

// withLogging adds request id, logging and metrics middleware
func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))
		w.Header().Set("X-Request-ID", requestID)

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.metrics.ObserveRequest(route, strconv.Itoa(rw.statusCode), float64(duration.Milliseconds()))

		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
