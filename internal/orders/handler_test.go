package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2beens/tableorder/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	name    string
	payload any
}

type testPublisher struct {
	events []publishedEvent
}

func (p *testPublisher) Broadcast(_ context.Context, eventName string, payload any) {
	p.events = append(p.events, publishedEvent{name: eventName, payload: payload})
}

func newTestHandler() (*Handler, *TestApi, *testPublisher) {
	api := NewTestApi()
	publisher := &testPublisher{}
	return NewHandler(api, publisher, metrics.NewTestManager()), api, publisher
}

func testRouter(handler *Handler) *mux.Router {
	router := mux.NewRouter()
	handler.SetupRoutes(router)
	return router
}

func TestHandler_Create(t *testing.T) {
	handler, _, publisher := newTestHandler()
	router := testRouter(handler)

	body := `{
		"customerName": "Nid", "tableNo": "T3", "note": "no chili",
		"items": [
			{"name": "Pad Thai", "price": 60, "qty": 2},
			{"name": "Tea", "price": 15, "qty": 1}
		]
	}`
	req := httptest.NewRequest("POST", "/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Message string `json:"message"`
		OrderID int    `json:"orderId"`
		Total   int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 135, resp.Total)
	assert.Positive(t, resp.OrderID)

	// exactly one broadcast, carrying the freshly read order
	require.Len(t, publisher.events, 1)
	assert.Equal(t, EventOrderCreated, publisher.events[0].name)
	broadcastOrder, ok := publisher.events[0].payload.(*Order)
	require.True(t, ok)
	assert.Equal(t, resp.OrderID, broadcastOrder.ID)
	assert.Equal(t, StatusPending, broadcastOrder.Status)
	require.Len(t, broadcastOrder.Items, 2)
	assert.Equal(t, "Pad Thai", broadcastOrder.Items[0].Name)
}

func TestHandler_Create_NoValidItems(t *testing.T) {
	handler, _, publisher := newTestHandler()
	router := testRouter(handler)

	body := `{"customerName": "Nid", "items": [{"name": "", "price": 10, "qty": 1}]}`
	req := httptest.NewRequest("POST", "/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, publisher.events)
}

func TestHandler_Create_BadPayload(t *testing.T) {
	handler, _, publisher := newTestHandler()
	router := testRouter(handler)

	req := httptest.NewRequest("POST", "/orders", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, publisher.events)
}

func TestHandler_Create_StorageError(t *testing.T) {
	handler, api, publisher := newTestHandler()
	router := testRouter(handler)
	api.Err = fmt.Errorf("connection refused")

	body := `{"items": [{"name": "Pad Thai", "price": 60, "qty": 2}]}`
	req := httptest.NewRequest("POST", "/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	// no event published, no internals leaked
	assert.Empty(t, publisher.events)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestHandler_List(t *testing.T) {
	handler, api, _ := newTestHandler()
	router := testRouter(handler)

	for i := range 3 {
		order, err := NormalizeNewOrder(NewOrderRequest{
			CustomerName: fmt.Sprintf("customer-%d", i),
			Items:        []NewOrderItem{{Name: "Tea", Price: 15, Qty: 1}},
		})
		require.NoError(t, err)
		_, err = api.Create(context.Background(), order)
		require.NoError(t, err)
	}

	req := httptest.NewRequest("GET", "/admin/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Orders []Order `json:"orders"`
		Total  int     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 3)
	assert.Equal(t, 3, resp.Total)
	// newest first
	assert.Equal(t, "customer-2", resp.Orders[0].CustomerName)
	assert.Equal(t, "customer-0", resp.Orders[2].CustomerName)
}

func TestHandler_UpdateStatus(t *testing.T) {
	handler, api, publisher := newTestHandler()
	router := testRouter(handler)

	order, err := NormalizeNewOrder(NewOrderRequest{
		CustomerName: "Nid",
		Items:        []NewOrderItem{{Name: "Pad Thai", Price: 60, Qty: 2}},
	})
	require.NoError(t, err)
	createdOrder, err := api.Create(context.Background(), order)
	require.NoError(t, err)

	url := fmt.Sprintf("/admin/orders/%d/status", createdOrder.ID)
	req := httptest.NewRequest("PATCH", url, strings.NewReader(`{"status": "Served"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Message string `json:"message"`
		Order   Order  `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, StatusServed, resp.Order.Status)
	require.Len(t, resp.Order.Items, 1)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, EventOrderUpdated, publisher.events[0].name)
}

func TestHandler_UpdateStatus_Errors(t *testing.T) {
	handler, api, publisher := newTestHandler()
	router := testRouter(handler)

	order, err := NormalizeNewOrder(NewOrderRequest{
		Items: []NewOrderItem{{Name: "Tea", Price: 15, Qty: 1}},
	})
	require.NoError(t, err)
	createdOrder, err := api.Create(context.Background(), order)
	require.NoError(t, err)

	testCases := []struct {
		name         string
		url          string
		body         string
		expectedCode int
	}{
		{
			name:         "UnknownOrder",
			url:          "/admin/orders/9999/status",
			body:         `{"status": "served"}`,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "InvalidOrderID",
			url:          "/admin/orders/-2/status",
			body:         `{"status": "served"}`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "UnknownStatus",
			url:          fmt.Sprintf("/admin/orders/%d/status", createdOrder.ID),
			body:         `{"status": "delivered"}`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "BadPayload",
			url:          fmt.Sprintf("/admin/orders/%d/status", createdOrder.ID),
			body:         `{status`,
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("PATCH", tc.url, strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}

	// no failed call published anything
	assert.Empty(t, publisher.events)
}
