package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/lifecycle"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/validator"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// PaymentEvent - событие от платежного провайдера (callback).
type PaymentEvent struct {
	OrderUID      string              `json:"orderUid" validate:"required"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus" validate:"required,oneof=completed failed"`
}

// Reader - интерфейс чтения сообщений (реализуется *kafka.Reader).
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer - интерфейс записи сообщений (реализуется *kafka.Writer).
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает и обрабатывает платежные события из Kafka.
type Consumer struct {
	reader     Reader
	dlqWriter  Writer // Продюсер для отправки "битых" сообщений в DLQ
	storage    database.Storage
	cache      cache.Cache
	tracer     trace.Tracer // Для трассировки
	maxRetries int          // Количество попыток для временных ошибок БД
}

// NewConsumer создает новый экземпляр Consumer.
func NewConsumer(cfg config.KafkaConfig, storage database.Storage, cache cache.Cache) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
		// Коммиты будут выполняться вручную после успешной обработки.
	})

	// Продюсер для DLQ
	dlqWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.DLQTopic,
		Balancer: &kafka.LeastBytes{},
	}

	return &Consumer{
		reader:     reader,
		dlqWriter:  dlqWriter,
		storage:    storage,
		cache:      cache,
		tracer:     otel.Tracer("kafka-consumer"),
		maxRetries: 3, // 3 попытки на обращение к БД
	}
}

// Run запускает цикл чтения сообщений из Kafka.
func (c *Consumer) Run(ctx context.Context) {
	log.Println("Kafka-консюмер платежных событий запущен...")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Printf("Ошибка закрытия Kafka-ридера: %v", err)
		}
		if err := c.dlqWriter.Close(); err != nil {
			log.Printf("Ошибка закрытия Kafka (DLQ) writer: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("Kafka-консюмер останавливается.")
			return
		default:
			// FetchMessage используется для ручного контроля коммитов
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				log.Printf("Ошибка чтения сообщения из Kafka: %v", err)
				continue
			}

			// Обрабатываем сообщение
			procErr := c.processMessage(ctx, msg)

			if procErr != nil {
				// Ошибка = нужна повторная обработка.
				// Мы НЕ коммитим сообщение, Kafka доставит его повторно.
				log.Printf("Ошибка обработки сообщения (key: %s): %v. Не коммитим, ждем retry.", string(msg.Key), procErr)
			} else {
				// nil = обработка успешна (в т.ч. уход в DLQ).
				// Коммитим, чтобы Kafka не присылала его снова.
				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					log.Printf("Ошибка коммита сообщения: %v", err)
				}
			}
		}
	}
}

// processMessage выполняет десериализацию, валидацию события и перевод
// платежного статуса заказа. Статус заказа (fulfillment) при этом не меняется.
// Возвращает error, если нужен Kafka-retry (например, БД временно недоступна).
// Возвращает nil, если обработка успешна или сообщение ушло в DLQ (не нужно ретраить).
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	ctx, span := c.tracer.Start(ctx, "Consumer.processMessage")
	defer span.End()

	var event PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("Невалидное JSON-сообщение, отправка в DLQ: %v", err)
		c.sendToDLQ(ctx, msg, "json_unmarshal_error", err)
		metrics.KafkaMessagesProcessed.WithLabelValues("dlq_validation").Inc()
		return nil // Коммитим (не ретраим "битый" JSON)
	}

	// Валидация данных
	if err := validator.ValidateStruct(&event); err != nil {
		log.Printf("Ошибка валидации события для UID %s, отправка в DLQ: %v", event.OrderUID, err)
		c.sendToDLQ(ctx, msg, "validation_error", err)
		metrics.KafkaMessagesProcessed.WithLabelValues("dlq_validation").Inc()
		return nil // Коммитим (не ретраим невалидные данные)
	}

	// Читаем заказ из БД с внутренним Retry-циклом
	var order *model.Order
	var dbErr error
	for i := 0; i < c.maxRetries; i++ {
		order, dbErr = c.storage.GetOrderByUID(ctx, event.OrderUID)
		if dbErr == nil || errors.Is(dbErr, database.ErrOrderNotFound) {
			break
		}
		metrics.DBErrors.WithLabelValues("get_order").Inc()
		log.Printf("Ошибка чтения заказа из БД (попытка %d/%d): %v", i+1, c.maxRetries, dbErr)
		time.Sleep(time.Second * time.Duration(i+1)) // Простой backoff
	}

	if errors.Is(dbErr, database.ErrOrderNotFound) {
		log.Printf("Заказ %s не найден, отправка события в DLQ.", event.OrderUID)
		c.sendToDLQ(ctx, msg, "order_not_found", dbErr)
		metrics.KafkaMessagesProcessed.WithLabelValues("dlq_not_found").Inc()
		return nil // Коммитим (повторная доставка не поможет)
	}
	if dbErr != nil {
		log.Printf("Не удалось прочитать заказ %s после %d попыток, отправка в DLQ.", event.OrderUID, c.maxRetries)
		c.sendToDLQ(ctx, msg, "db_read_error", dbErr)
		metrics.KafkaMessagesProcessed.WithLabelValues("dlq_db_error").Inc()
		return nil
	}

	// Проверяем переход платежного статуса
	updated, err := lifecycle.UpdatePaymentStatus(*order, event.PaymentStatus)
	if err != nil {
		// Терминальный статус или неизвестный целевой - решение уже зафиксировано,
		// повторная доставка того же события ничего не изменит.
		log.Printf("Недопустимый переход платежного статуса для %s: %v. Отправка в DLQ.", event.OrderUID, err)
		c.sendToDLQ(ctx, msg, "payment_transition_error", err)
		metrics.StatusTransitions.WithLabelValues("payment", "rejected").Inc()
		metrics.KafkaMessagesProcessed.WithLabelValues("dlq_transition").Inc()
		return nil
	}

	// Сохранение в БД с внутренним Retry-циклом
	for i := 0; i < c.maxRetries; i++ {
		dbErr = c.storage.UpdatePaymentStatus(ctx, event.OrderUID, event.PaymentStatus)
		if dbErr == nil {
			break // Успешно
		}
		metrics.DBErrors.WithLabelValues("update_payment").Inc()
		log.Printf("Ошибка обновления платежного статуса в БД (попытка %d/%d): %v", i+1, c.maxRetries, dbErr)
		time.Sleep(time.Second * time.Duration(i+1))
	}

	// Если после всех попыток ошибка осталась
	if dbErr != nil {
		log.Printf("Не удалось обновить платежный статус %s после %d попыток, отправка в DLQ.", event.OrderUID, c.maxRetries)
		c.sendToDLQ(ctx, msg, "db_update_error", fmt.Errorf("обновление платежного статуса: %w", dbErr))
		metrics.KafkaMessagesProcessed.WithLabelValues("dlq_db_error").Inc()
		return nil // Коммитим (не ретраим, т.к. исчерпали попытки)
	}

	log.Printf("Платежный статус заказа %s переведен в %s.", event.OrderUID, event.PaymentStatus)
	metrics.StatusTransitions.WithLabelValues("payment", "ok").Inc()

	// Обновляем кэш копией заказа с новым статусом
	c.cache.Set(ctx, updated.OrderUID, &updated)
	metrics.KafkaMessagesProcessed.WithLabelValues("success").Inc()

	return nil
}

// sendToDLQ отправляет "битое" сообщение в DLQ топик.
func (c *Consumer) sendToDLQ(ctx context.Context, originalMsg kafka.Message, reason string, procErr error) {
	_, span := c.tracer.Start(ctx, "Consumer.sendToDLQ")
	defer span.End()

	// Отправляем сообщение в DLQ с доп. заголовками об ошибке
	err := c.dlqWriter.WriteMessages(ctx, kafka.Message{
		Key:   originalMsg.Key,
		Value: originalMsg.Value,
		Headers: []kafka.Header{
			{Key: "X-Original-Topic", Value: []byte(originalMsg.Topic)},
			{Key: "X-Error-Reason", Value: []byte(reason)},
			{Key: "X-Error-Details", Value: []byte(procErr.Error())},
		},
	})

	if err != nil {
		log.Printf("КРИТИЧНО: Не удалось отправить сообщение %s в DLQ: %v", string(originalMsg.Key), err)
		metrics.KafkaMessagesProcessed.WithLabelValues("dlq_failed_write").Inc()
	} else {
		log.Printf("Сообщение %s отправлено в DLQ (Причина: %s)", string(originalMsg.Key), reason)
	}
}
