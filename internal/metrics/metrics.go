package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal - Счетчик HTTP-запросов
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Количество HTTP запросов",
		},
		[]string{"handler", "status"}, // Метки: хэндлер и http-статус
	)

	// HttpRequestDuration - Гистограмма длительности HTTP-запросов
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Длительность HTTP запросов",
		},
		[]string{"handler"}, // Метки: хэндлер
	)

	// OrdersCreated - Счетчик созданных заказов
	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Количество созданных заказов",
		},
		[]string{"payment_method"}, // Метки: "cod", "qr"
	)

	// StatusTransitions - Счетчик переходов статусов заказов
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Количество переходов статусов заказов",
		},
		[]string{"machine", "result"}, // Метки: "order"/"payment", "ok"/"rejected"
	)

	// CacheHits - Счетчик попаданий в кэш
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Количество попаданий в кэш",
		},
	)

	// CacheMisses - Счетчик промахов кэша
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Количество промахов кэша",
		},
	)

	// KafkaMessagesProcessed - Счетчик обработанных Kafka-сообщений
	KafkaMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_processed_total",
			Help: "Количество обработанных сообщений Kafka",
		},
		[]string{"status"}, // Метки: "success", "dlq_validation", "dlq_not_found", "dlq_transition", "dlq_db_error", "dlq_failed_write"
	)

	// DBErrors - Счетчик ошибок базы данных
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Количество ошибок при работе с БД",
		},
		[]string{"operation"}, // Метки: "create_order", "get_order", "list_orders", "update_status", "update_payment"
	)

	// CacheSize - Датчик (Gauge) текущего размера кэша
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_size_items",
			Help: "Текущий размер кэша в элементах",
		},
	)

	// CacheEvictions - Счетчик вытеснений из кэша (LRU)
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Количество вытесненных из кэша элементов",
		},
	)
)

// Init используется для регистрации метрик.
// promauto регистрирует их автоматически при создании.
func Init() {
	log.Println("Prometheus метрики инициализированы.")
}
