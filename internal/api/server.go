package api

import (
	"fmt"
	"net/http"

	"storefront/internal/cache"
	"storefront/internal/checkout"
	"storefront/internal/database"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server представляет HTTP-сервер.
type Server struct {
	port    string
	router  *chi.Mux
	storage database.Storage
	cache   cache.Cache
	builder *checkout.Builder
}

// NewServer создает и настраивает новый экземпляр сервера.
func NewServer(port string, storage database.Storage, cache cache.Cache, builder *checkout.Builder) *Server {
	server := &Server{
		port:    port,
		storage: storage,
		cache:   cache,
		builder: builder,
	}
	server.router = server.setupRouter()
	return server
}

// Run запускает HTTP-сервер.
func (s *Server) Run() error {
	address := fmt.Sprintf(":%s", s.port)
	fmt.Printf("🚀 HTTP-сервер запущен на http://localhost%s\n", address)

	// Оборачиваем роутер для трассировки входящих запросов
	handler := otelhttp.NewHandler(s.router, "orders-http")
	return http.ListenAndServe(address, handler)
}

// setupRouter настраивает маршрутизацию.
func (s *Server) setupRouter() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Обработчик API
	orderHandler := NewOrderHandler(s.storage, s.cache, s.builder)
	router.Route("/api/orders", func(r chi.Router) {
		r.Post("/", orderHandler.Create)
		r.Get("/", orderHandler.List)
		r.Get("/my-orders", orderHandler.MyOrders)
		r.Get("/{orderUID}", orderHandler.GetByUID)
		r.Put("/{orderUID}/status", orderHandler.UpdateStatus)
		r.Put("/{orderUID}/payment-status", orderHandler.UpdatePaymentStatus)
	})

	// Метрики Prometheus
	router.Handle("/metrics", promhttp.Handler())

	return router
}
