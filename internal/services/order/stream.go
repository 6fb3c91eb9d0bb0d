package order

import (
	"encoding/json"
	"fmt"
	"net/http"

	"cart-order-system/internal/logger"
)

// StreamOrders handles GET /orders/stream
func (h *Handler) StreamOrders(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		h.fail(w, r, "validation_failed", err)
		return
	}
	streamEvents(h, w, r, "orders", h.service.WatchOrders(r.Context(), q, nil))
}

// StreamOrder handles GET /orders/{orderID}/stream
func (h *Handler) StreamOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	if _, err := h.service.OrderDetail(r.Context(), orderID); err != nil {
		h.fail(w, r, "order_detail_failed", err)
		return
	}
	streamEvents(h, w, r, "order", h.service.WatchOrder(r.Context(), orderID))
}

// StreamQuantity handles GET /orders/{orderID}/products/{productID}/quantity
func (h *Handler) StreamQuantity(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}

	quantities, err := h.service.QuantityOf(r.Context(), orderID, productID)
	if err != nil {
		h.fail(w, r, "quantity_failed", err)
		return
	}
	streamEvents(h, w, r, "quantity", quantities)
}

// StreamSelected handles GET /selected/stream
func (h *Handler) StreamSelected(w http.ResponseWriter, r *http.Request) {
	streamEvents(h, w, r, "selected", h.service.WatchSelected(r.Context()))
}

// streamEvents writes every value received on values as a server-sent event
// until the channel closes or the client goes away.
func streamEvents[T any](h *Handler, w http.ResponseWriter, r *http.Request, event string, values <-chan T) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	requestID := logger.RequestID(r.Context())
	for {
		select {
		case <-r.Context().Done():
			return
		case v, ok := <-values:
			if !ok {
				return
			}
			data, err := json.Marshal(v)
			if err != nil {
				h.logger.Error("response_encoding_failed", "Failed to encode stream event", requestID, err, nil)
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
