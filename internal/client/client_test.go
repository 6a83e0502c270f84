package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestClient_CreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "user-1", r.Header.Get("X-User-ID"))

		var req CreateOrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Items, 1)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.Order{OrderUID: "new-uid", OrderStatus: model.StatusPending})
	}))
	defer server.Close()

	c := New(server.URL, WithToken("test-token"), WithUserID("user-1"))

	order, err := c.CreateOrder(context.Background(), CreateOrderRequest{
		Items:         []model.OrderItem{{ProductID: "prod-1", Quantity: 1, UnitPrice: 10}},
		PaymentMethod: model.PaymentCOD,
	})
	assert.NoError(t, err)
	assert.Equal(t, "new-uid", order.OrderUID)
	assert.Equal(t, model.StatusPending, order.OrderStatus)
}

func TestClient_GetOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/test-uid-123", r.URL.Path)
		json.NewEncoder(w).Encode(model.Order{OrderUID: "test-uid-123"})
	}))
	defer server.Close()

	c := New(server.URL)

	order, err := c.GetOrder(context.Background(), "test-uid-123")
	assert.NoError(t, err)
	assert.Equal(t, "test-uid-123", order.OrderUID)
}

func TestClient_GetOrder_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "заказ не найден"})
	}))
	defer server.Close()

	c := New(server.URL)

	order, err := c.GetOrder(context.Background(), "missing")
	assert.Nil(t, order)

	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "заказ не найден", apiErr.Message)
}

func TestClient_MyOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/my-orders", r.URL.Path)
		assert.Equal(t, "user-7", r.Header.Get("X-User-ID"))
		json.NewEncoder(w).Encode([]model.Order{{OrderUID: "uid-1"}, {OrderUID: "uid-2"}})
	}))
	defer server.Close()

	c := New(server.URL, WithUserID("user-7"))

	orders, err := c.MyOrders(context.Background())
	assert.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestClient_ListOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "shipped", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(OrdersPage{
			Orders:     []model.Order{{OrderUID: "uid-1"}},
			TotalPages: 4,
		})
	}))
	defer server.Close()

	c := New(server.URL)

	page, err := c.ListOrders(context.Background(), "shipped", 2, 5)
	assert.NoError(t, err)
	assert.Len(t, page.Orders, 1)
	assert.Equal(t, 4, page.TotalPages)
}

func TestClient_UpdateOrderStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/orders/test-uid-123/status", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "shipped", body["orderStatus"])
		assert.Equal(t, "TRK1", body["trackingNumber"])

		json.NewEncoder(w).Encode(model.Order{
			OrderUID:       "test-uid-123",
			OrderStatus:    model.StatusShipped,
			TrackingNumber: "TRK1",
		})
	}))
	defer server.Close()

	c := New(server.URL)

	order, err := c.UpdateOrderStatus(context.Background(), "test-uid-123", model.StatusShipped, "TRK1")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusShipped, order.OrderStatus)
	assert.Equal(t, "TRK1", order.TrackingNumber)
}

func TestClient_UpdateOrderStatus_Conflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "заказ в терминальном статусе"})
	}))
	defer server.Close()

	c := New(server.URL)

	order, err := c.UpdateOrderStatus(context.Background(), "test-uid-123", model.StatusProcessing, "")
	assert.Nil(t, order)

	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestClient_UpdatePaymentStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/test-uid-123/payment-status", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "completed", body["paymentStatus"])

		json.NewEncoder(w).Encode(model.Order{
			OrderUID:      "test-uid-123",
			PaymentStatus: model.PaymentCompleted,
		})
	}))
	defer server.Close()

	c := New(server.URL)

	order, err := c.UpdatePaymentStatus(context.Background(), "test-uid-123", model.PaymentCompleted)
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, order.PaymentStatus)
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(server.URL)

	_, err := c.GetOrder(context.Background(), "uid")

	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "bad gateway", apiErr.Message)
}
