package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/2beens/tableorder/internal/telemetry/metrics"
	"github.com/2beens/tableorder/internal/telemetry/tracing"
	"github.com/2beens/tableorder/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	EventOrderCreated = "order_created"
	EventOrderUpdated = "order_updated"
)

// EventPublisher fans an order lifecycle event out to live stream subscribers
type EventPublisher interface {
	Broadcast(ctx context.Context, eventName string, payload any)
}

type Handler struct {
	api       Api
	publisher EventPublisher
	metrics   *metrics.Manager
}

func NewHandler(
	api Api,
	publisher EventPublisher,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		api:       api,
		publisher: publisher,
		metrics:   metrics,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/orders", handler.HandleCreate).Methods("POST", "OPTIONS").Name("new-order")

	adminRouter := router.PathPrefix("/admin").Subrouter()
	adminRouter.HandleFunc("/orders", handler.HandleList).Methods("GET", "OPTIONS").Name("list-orders")
	adminRouter.HandleFunc("/orders/{id}/status", handler.HandleUpdateStatus).Methods("PATCH", "OPTIONS").Name("update-order-status")
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "ordersHandler.create")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	var req NewOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("create order, unmarshal json params: %s", err)
		http.Error(w, "error, invalid order payload", http.StatusBadRequest)
		span.SetStatus(codes.Error, "bad-payload")
		return
	}

	order, err := NormalizeNewOrder(req)
	if err != nil {
		// the only normalization failure: nothing valid left to order
		http.Error(w, "error, no items", http.StatusBadRequest)
		span.SetStatus(codes.Error, "no-items")
		return
	}

	createdOrder, err := handler.api.Create(ctx, order)
	if err != nil {
		log.Errorf("failed to create order for [%s]: %s", order.CustomerName, err)
		http.Error(w, "error, failed to create order", http.StatusInternalServerError)
		span.SetStatus(codes.Error, "create-order-err")
		span.RecordError(err)
		return
	}

	handler.metrics.CounterOrdersCreated.Inc()
	handler.publisher.Broadcast(ctx, EventOrderCreated, createdOrder)

	span.SetAttributes(attribute.Int("order.id", createdOrder.ID))
	span.SetStatus(codes.Ok, "ok")

	log.Printf("new order %d created for [%s], total: %d", createdOrder.ID, createdOrder.CustomerName, createdOrder.Total)
	pkg.WriteResponse(
		w, pkg.ContentType.JSON, http.StatusCreated,
		fmt.Sprintf(`{"message":"order created","orderId":%d,"total":%d}`, createdOrder.ID, createdOrder.Total),
	)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "ordersHandler.list")
	defer span.End()

	orders, err := handler.api.List(ctx)
	if err != nil {
		log.Errorf("list orders error: %s", err)
		http.Error(w, "failed to get orders", http.StatusInternalServerError)
		span.SetStatus(codes.Error, "list-orders-err")
		return
	}

	if len(orders) == 0 {
		orders = []Order{}
	}

	ordersJson, err := json.Marshal(orders)
	if err != nil {
		log.Errorf("marshal orders error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	span.SetStatus(codes.Ok, "ok")
	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"orders": %s, "total": %d}`, ordersJson, len(orders)))
}

func (handler *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "ordersHandler.updateStatus")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "PATCH, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	orderID, err := strconv.Atoi(vars["id"])
	if err != nil || orderID <= 0 {
		http.Error(w, "error, invalid order id", http.StatusBadRequest)
		span.SetStatus(codes.Error, "bad-order-id")
		return
	}

	var statusReq struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&statusReq); err != nil {
		log.Errorf("update order status, unmarshal json params: %s", err)
		http.Error(w, "error, invalid status payload", http.StatusBadRequest)
		span.SetStatus(codes.Error, "bad-payload")
		return
	}

	status, err := ParseStatus(statusReq.Status)
	if err != nil {
		http.Error(w, "error, unknown status", http.StatusBadRequest)
		span.SetStatus(codes.Error, "unknown-status")
		return
	}

	updatedOrder, err := handler.api.UpdateStatus(ctx, orderID, status)
	if errors.Is(err, ErrOrderNotFound) {
		http.Error(w, "error, order not found", http.StatusNotFound)
		span.SetStatus(codes.Error, "order-not-found")
		return
	}
	if err != nil {
		log.Errorf("failed to update order %d status to [%s]: %s", orderID, status, err)
		http.Error(w, "error, failed to update order status", http.StatusInternalServerError)
		span.SetStatus(codes.Error, "update-status-err")
		span.RecordError(err)
		return
	}

	handler.metrics.CounterOrderStatusUpdates.Inc()
	handler.publisher.Broadcast(ctx, EventOrderUpdated, updatedOrder)

	orderJson, err := json.Marshal(updatedOrder)
	if err != nil {
		log.Errorf("marshal updated order error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.Int("order.id", orderID))
	span.SetStatus(codes.Ok, "ok")

	log.Printf("order %d status updated to [%s]", orderID, status)
	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"message":"order updated","order":%s}`, orderJson))
}
