// Package client - тонкий HTTP-клиент к API заказов.
// Используется демо-продюсером и интеграционными скриптами.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/internal/model"
)

// APIError - ошибка, возвращенная сервером заказов.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: статус %d: %s", e.StatusCode, e.Message)
}

// Client выполняет запросы к API заказов.
type Client struct {
	baseURL    string
	token      string // Bearer-токен (опционально)
	userID     string // Заголовок X-User-ID
	httpClient *http.Client
}

// Option настраивает Client.
type Option func(*Client)

// WithToken задает Bearer-токен авторизации.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUserID задает идентификатор пользователя.
func WithUserID(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// WithHTTPClient подменяет http.Client (например, в тестах).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// New создает клиент API заказов.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateOrderRequest - тело запроса на оформление заказа.
type CreateOrderRequest struct {
	Items           []model.OrderItem     `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   model.PaymentMethod   `json:"paymentMethod"`
}

// OrdersPage - страница заказов из админского списка.
type OrdersPage struct {
	Orders     []model.Order `json:"orders"`
	TotalPages int           `json:"totalPages"`
}

// CreateOrder оформляет новый заказ.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	var order model.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder возвращает заказ по UID.
func (c *Client) GetOrder(ctx context.Context, orderUID string) (*model.Order, error) {
	var order model.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(orderUID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// MyOrders возвращает заказы текущего пользователя.
func (c *Client) MyOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/my-orders", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrders возвращает страницу заказов, опционально по статусу.
func (c *Client) ListOrders(ctx context.Context, status string, page, limit int) (*OrdersPage, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	path := "/api/orders"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var result OrdersPage
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateOrderStatus переводит заказ в новый статус выполнения.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderUID string, status model.OrderStatus, trackingNumber string) (*model.Order, error) {
	body := map[string]string{
		"orderStatus":    string(status),
		"trackingNumber": trackingNumber,
	}
	var order model.Order
	if err := c.do(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(orderUID)+"/status", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdatePaymentStatus фиксирует результат оплаты заказа.
func (c *Client) UpdatePaymentStatus(ctx context.Context, orderUID string, status model.PaymentStatus) (*model.Order, error) {
	body := map[string]string{"paymentStatus": string(status)}
	var order model.Order
	if err := c.do(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(orderUID)+"/payment-status", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// do выполняет запрос и декодирует ответ либо ошибку сервера.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("кодирование тела запроса: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("выполнение запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return parseAPIError(resp)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("декодирование ответа: %w", err)
	}
	return nil
}

// parseAPIError извлекает сообщение об ошибке из тела ответа.
func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Message string `json:"message"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err == nil && json.Unmarshal(raw, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
