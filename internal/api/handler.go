package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"storefront/internal/cache"
	"storefront/internal/checkout"
	"storefront/internal/database"
	"storefront/internal/lifecycle"
	"storefront/internal/metrics"
	"storefront/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// OrderHandler обрабатывает HTTP-запросы, связанные с заказами.
type OrderHandler struct {
	storage database.Storage // Используем интерфейс
	cache   cache.Cache      // Используем интерфейс
	builder *checkout.Builder
}

// NewOrderHandler создает новый экземпляр OrderHandler.
func NewOrderHandler(storage database.Storage, cache cache.Cache, builder *checkout.Builder) *OrderHandler {
	return &OrderHandler{storage: storage, cache: cache, builder: builder}
}

// createOrderRequest - тело запроса на оформление заказа.
// Стоимость доставки и итог не принимаются от клиента, а считаются на сервере.
type createOrderRequest struct {
	Items           []model.OrderItem     `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   model.PaymentMethod   `json:"paymentMethod"`
}

// updateStatusRequest - тело запроса на смену статуса заказа.
type updateStatusRequest struct {
	OrderStatus    model.OrderStatus `json:"orderStatus"`
	TrackingNumber string            `json:"trackingNumber"`
}

// updatePaymentRequest - тело запроса на смену платежного статуса.
type updatePaymentRequest struct {
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
}

// listOrdersResponse - страница заказов для админки.
type listOrdersResponse struct {
	Orders     []model.Order `json:"orders"`
	TotalPages int           `json:"totalPages"`
}

// errorResponse - JSON-тело ошибки.
type errorResponse struct {
	Message string                `json:"message"`
	Fields  []checkout.FieldError `json:"fields,omitempty"`
}

// Create оформляет новый заказ: собирает черновик, считает доставку и итог,
// сохраняет заказ и кладет его в кэш.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	handlerName := "Create"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respondWithError(w, http.StatusUnauthorized, "пользователь не аутентифицирован", handlerName)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "невалидное тело запроса", handlerName)
		return
	}

	draft, err := h.builder.Build(userID, req.Items, req.ShippingAddress, req.PaymentMethod)
	if err != nil {
		var vErr *checkout.ValidationError
		if errors.As(err, &vErr) {
			log.Printf("Ошибка валидации черновика заказа: %v", vErr)
			metrics.HttpRequestsTotal.WithLabelValues(handlerName, "400").Inc()
			respondWithJSON(w, http.StatusBadRequest, errorResponse{
				Message: "заказ не прошел валидацию",
				Fields:  vErr.Fields,
			})
			return
		}
		log.Printf("Ошибка сборки черновика заказа: %v", err)
		respondWithError(w, http.StatusInternalServerError, "внутренняя ошибка сервера", handlerName)
		return
	}

	order, err := h.storage.CreateOrder(r.Context(), draft)
	if err != nil {
		log.Printf("Ошибка сохранения заказа в БД: %v", err)
		metrics.DBErrors.WithLabelValues("create_order").Inc()
		respondWithError(w, http.StatusInternalServerError, "не удалось сохранить заказ", handlerName)
		return
	}

	h.cache.Set(r.Context(), order.OrderUID, order)
	metrics.OrdersCreated.WithLabelValues(string(order.PaymentMethod)).Inc()
	log.Printf("Заказ %s создан (итог: %.2f, доставка: %.2f).", order.OrderUID, order.TotalAmount, order.ShippingCost)

	metrics.HttpRequestsTotal.WithLabelValues(handlerName, "201").Inc()
	respondWithJSON(w, http.StatusCreated, order)
}

// GetByUID ищет заказ по UID сначала в кэше, затем в БД.
func (h *OrderHandler) GetByUID(w http.ResponseWriter, r *http.Request) {
	handlerName := "GetByUID"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration() // Замеряем длительность запроса

	orderUID := chi.URLParam(r, "orderUID")
	if orderUID == "" {
		respondWithError(w, http.StatusBadRequest, "UID заказа не указан", handlerName)
		return
	}

	// Поиск в кэше. Передаем контекст (r.Context()) для трейсинга.
	if order, found := h.cache.Get(r.Context(), orderUID); found {
		log.Printf("КЭШ ХИТ: %s", orderUID)
		metrics.CacheHits.Inc()
		metrics.HttpRequestsTotal.WithLabelValues(handlerName, "200").Inc()
		respondWithJSON(w, http.StatusOK, order)
		return
	}

	// Поиск в БД
	log.Printf("КЭШ ПРОМАХ: %s. Запрос к БД.", orderUID)
	metrics.CacheMisses.Inc()

	order, err := h.storage.GetOrderByUID(r.Context(), orderUID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "заказ не найден", handlerName)
			return
		}
		log.Printf("Ошибка получения заказа из БД: %v", err)
		metrics.DBErrors.WithLabelValues("get_order").Inc()
		respondWithError(w, http.StatusInternalServerError, "внутренняя ошибка сервера", handlerName)
		return
	}

	// Сохранение в кэш. Передаем контекст.
	h.cache.Set(r.Context(), orderUID, order)
	log.Printf("Заказ %s добавлен в кэш.", orderUID)

	metrics.HttpRequestsTotal.WithLabelValues(handlerName, "200").Inc()
	respondWithJSON(w, http.StatusOK, order)
}

// List возвращает страницу заказов (для админки), опционально по статусу.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	handlerName := "List"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	status := r.URL.Query().Get("status")
	if status != "" && !lifecycle.ValidOrderStatus(model.OrderStatus(status)) {
		respondWithError(w, http.StatusBadRequest, "неизвестный статус заказа", handlerName)
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)

	orders, totalPages, err := h.storage.ListOrders(r.Context(), status, page, limit)
	if err != nil {
		log.Printf("Ошибка получения списка заказов: %v", err)
		metrics.DBErrors.WithLabelValues("list_orders").Inc()
		respondWithError(w, http.StatusInternalServerError, "внутренняя ошибка сервера", handlerName)
		return
	}

	metrics.HttpRequestsTotal.WithLabelValues(handlerName, "200").Inc()
	respondWithJSON(w, http.StatusOK, listOrdersResponse{Orders: orders, TotalPages: totalPages})
}

// MyOrders возвращает заказы текущего пользователя.
func (h *OrderHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	handlerName := "MyOrders"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		respondWithError(w, http.StatusUnauthorized, "пользователь не аутентифицирован", handlerName)
		return
	}

	orders, err := h.storage.ListOrdersByUser(r.Context(), userID)
	if err != nil {
		log.Printf("Ошибка получения заказов пользователя %s: %v", userID, err)
		metrics.DBErrors.WithLabelValues("list_orders").Inc()
		respondWithError(w, http.StatusInternalServerError, "внутренняя ошибка сервера", handlerName)
		return
	}

	metrics.HttpRequestsTotal.WithLabelValues(handlerName, "200").Inc()
	respondWithJSON(w, http.StatusOK, orders)
}

// UpdateStatus переводит заказ в новый статус выполнения.
// Трекинг-номер записывается только при переходе в shipped/delivered.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	handlerName := "UpdateStatus"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	orderUID := chi.URLParam(r, "orderUID")
	if orderUID == "" {
		respondWithError(w, http.StatusBadRequest, "UID заказа не указан", handlerName)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "невалидное тело запроса", handlerName)
		return
	}

	// Переход проверяется по состоянию из БД, кэш может отставать.
	order, err := h.storage.GetOrderByUID(r.Context(), orderUID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "заказ не найден", handlerName)
			return
		}
		log.Printf("Ошибка получения заказа из БД: %v", err)
		metrics.DBErrors.WithLabelValues("get_order").Inc()
		respondWithError(w, http.StatusInternalServerError, "внутренняя ошибка сервера", handlerName)
		return
	}

	updated, err := lifecycle.Transition(*order, req.OrderStatus, req.TrackingNumber)
	if err != nil {
		var tErr *lifecycle.TransitionError
		if errors.As(err, &tErr) {
			log.Printf("Недопустимый переход статуса %s: %v", orderUID, tErr)
			metrics.StatusTransitions.WithLabelValues("order", "rejected").Inc()
			metrics.HttpRequestsTotal.WithLabelValues(handlerName, "409").Inc()
			respondWithJSON(w, http.StatusConflict, errorResponse{Message: tErr.Error()})
			return
		}
		respondWithError(w, http.StatusInternalServerError, "внутренняя ошибка сервера", handlerName)
		return
	}

	if err := h.storage.UpdateOrderStatus(r.Context(), orderUID, updated.OrderStatus, updated.TrackingNumber); err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "заказ не найден", handlerName)
			return
		}
		log.Printf("Ошибка обновления статуса заказа в БД: %v", err)
		metrics.DBErrors.WithLabelValues("update_status").Inc()
		respondWithError(w, http.StatusInternalServerError, "не удалось обновить статус", handlerName)
		return
	}

	metrics.StatusTransitions.WithLabelValues("order", "ok").Inc()
	h.cache.Set(r.Context(), orderUID, &updated)
	log.Printf("Заказ %s переведен в статус %s.", orderUID, updated.OrderStatus)

	metrics.HttpRequestsTotal.WithLabelValues(handlerName, "200").Inc()
	respondWithJSON(w, http.StatusOK, updated)
}

// UpdatePaymentStatus фиксирует результат оплаты заказа.
// Статус выполнения заказа при этом не затрагивается.
func (h *OrderHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	handlerName := "UpdatePaymentStatus"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	orderUID := chi.URLParam(r, "orderUID")
	if orderUID == "" {
		respondWithError(w, http.StatusBadRequest, "UID заказа не указан", handlerName)
		return
	}

	var req updatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "невалидное тело запроса", handlerName)
		return
	}

	order, err := h.storage.GetOrderByUID(r.Context(), orderUID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "заказ не найден", handlerName)
			return
		}
		log.Printf("Ошибка получения заказа из БД: %v", err)
		metrics.DBErrors.WithLabelValues("get_order").Inc()
		respondWithError(w, http.StatusInternalServerError, "внутренняя ошибка сервера", handlerName)
		return
	}

	updated, err := lifecycle.UpdatePaymentStatus(*order, req.PaymentStatus)
	if err != nil {
		var tErr *lifecycle.TransitionError
		if errors.As(err, &tErr) {
			log.Printf("Недопустимый платежный переход %s: %v", orderUID, tErr)
			metrics.StatusTransitions.WithLabelValues("payment", "rejected").Inc()
			metrics.HttpRequestsTotal.WithLabelValues(handlerName, "409").Inc()
			respondWithJSON(w, http.StatusConflict, errorResponse{Message: tErr.Error()})
			return
		}
		respondWithError(w, http.StatusInternalServerError, "внутренняя ошибка сервера", handlerName)
		return
	}

	if err := h.storage.UpdatePaymentStatus(r.Context(), orderUID, updated.PaymentStatus); err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "заказ не найден", handlerName)
			return
		}
		log.Printf("Ошибка обновления платежного статуса в БД: %v", err)
		metrics.DBErrors.WithLabelValues("update_payment").Inc()
		respondWithError(w, http.StatusInternalServerError, "не удалось обновить платежный статус", handlerName)
		return
	}

	metrics.StatusTransitions.WithLabelValues("payment", "ok").Inc()
	h.cache.Set(r.Context(), orderUID, &updated)
	log.Printf("Платежный статус заказа %s переведен в %s.", orderUID, updated.PaymentStatus)

	metrics.HttpRequestsTotal.WithLabelValues(handlerName, "200").Inc()
	respondWithJSON(w, http.StatusOK, updated)
}

// queryInt читает целочисленный query-параметр с дефолтом.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return def
	}
	return value
}

// respondWithJSON вспомогательная функция для отправки JSON-ответов.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError отправляет JSON-ошибку и инкрементирует метрику запросов.
func respondWithError(w http.ResponseWriter, code int, message string, handlerName string) {
	metrics.HttpRequestsTotal.WithLabelValues(handlerName, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, errorResponse{Message: message})
}
