package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/api"
	"storefront/internal/cache"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/kafka"
	"storefront/internal/metrics"
	"storefront/internal/pricing"
	"storefront/internal/tracing"
)

func main() {
	cfg := config.Get()

	// Трассировка и метрики
	shutdownTracer := tracing.InitTracerProvider("orders-service", cfg.Jaeger.URL)
	defer shutdownTracer()
	metrics.Init()

	// Инициализация хранилища
	storage, err := database.New(cfg.Postgres.URL, cfg.Postgres.MigrationsPath)
	if err != nil {
		log.Fatalf("Ошибка инициализации хранилища: %v", err)
	}
	defer storage.Close()

	// Инициализация кэша
	orderCache := cache.NewLRUCache(cfg.Cache.Size)
	if err := cache.WarmUp(context.Background(), storage, orderCache, cfg.Cache.Size); err != nil {
		log.Printf("Ошибка при прогреве кэша: %v", err)
	}

	// Сборщик черновиков заказов с тарифами доставки
	builder := checkout.NewBuilder(pricing.DefaultConfig(cfg.Pricing.FreeShippingThreshold))

	// Запуск Kafka Consumer платежных событий
	ctx, cancel := context.WithCancel(context.Background())
	consumer := kafka.NewConsumer(cfg.Kafka, storage, orderCache)
	go consumer.Run(ctx)

	// Запуск HTTP-сервера
	server := api.NewServer(cfg.HTTP.Port, storage, orderCache, builder)
	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Ошибка запуска HTTP-сервера: %v", err)
		}
	}()

	// Ожидание сигнала для корректного завершения работы
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	log.Println("Сервис останавливается...")
	cancel()
	log.Println("Сервис успешно остановлен.")
}
