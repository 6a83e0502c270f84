package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"storefront/internal/client"
	"storefront/internal/config"
	"storefront/internal/generator"
	"storefront/internal/model"

	"github.com/segmentio/kafka-go"
)

// Producer создает демо-заказы через API и шлет платежные события в Kafka.
type Producer struct {
	api    *client.Client
	writer *kafka.Writer
}

// paymentEvent - событие оплаты, как его шлет платежный провайдер.
type paymentEvent struct {
	OrderUID      string              `json:"orderUid"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
}

// NewProducer создает и настраивает новый экземпляр продюсера.
func NewProducer(apiURL string, brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &Producer{
		api:    client.New(apiURL, client.WithUserID("demo-user")),
		writer: writer,
	}
}

// produceOne оформляет один случайный заказ и, если оплата по QR,
// отправляет платежное событие в Kafka.
func (p *Producer) produceOne(ctx context.Context) error {
	items, addr, method := generator.NewDraftRequest()

	order, err := p.api.CreateOrder(ctx, client.CreateOrderRequest{
		Items:           items,
		ShippingAddress: addr,
		PaymentMethod:   method,
	})
	if err != nil {
		return fmt.Errorf("оформление заказа: %w", err)
	}
	fmt.Printf("Создан заказ %s (%s, итог: %.2f)\n", order.OrderUID, order.PaymentMethod, order.TotalAmount)

	// Наложенный платеж подтверждается при доставке, событие не шлем
	if order.PaymentMethod != model.PaymentQR {
		return nil
	}

	event := paymentEvent{
		OrderUID:      order.OrderUID,
		PaymentStatus: generator.NewPaymentStatus(),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("сериализация события: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderUID),
		Value: eventBytes,
	})
	if err != nil {
		return fmt.Errorf("отправка события: %w", err)
	}
	fmt.Printf("Отправлено платежное событие для %s: %s\n", event.OrderUID, event.PaymentStatus)
	return nil
}

// Run запускает бесконечный цикл генерации заказов.
func (p *Producer) Run(ctx context.Context, interval time.Duration) {
	log.Println("Продюсер запущен. Нажмите CTRL+C для остановки.")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Продюсер останавливается.")
			return
		case <-ticker.C:
			if err := p.produceOne(ctx); err != nil {
				log.Printf("Ошибка генерации заказа: %v", err)
			}
		}
	}
}

func (p *Producer) Close() {
	if err := p.writer.Close(); err != nil {
		log.Printf("Ошибка закрытия Kafka writer: %v", err)
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Get()

	apiURL := fmt.Sprintf("http://localhost:%s", cfg.HTTP.Port)
	producer := NewProducer(apiURL, cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	producer.Run(ctx, 2*time.Second)
}
