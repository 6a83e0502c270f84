package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront/internal/cache/mocks"
	"storefront/internal/database"
	db_mocks "storefront/internal/database/mocks"
	"storefront/internal/model"

	"go.opentelemetry.io/otel"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

type NoOpReader struct{}

func (r *NoOpReader) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, nil
}
func (r *NoOpReader) CommitMessages(context.Context, ...kafka.Message) error {
	return nil
}
func (r *NoOpReader) Close() error { return nil }

// setupConsumerAndMocks - хелпер для инициализации консюмера и моков
func setupConsumerAndMocks(t *testing.T) (*gomock.Controller, *Consumer, *mocks.MockCache, *db_mocks.MockStorage) {
	ctrl := gomock.NewController(t)
	mockCache := mocks.NewMockCache(ctrl)
	mockStorage := db_mocks.NewMockStorage(ctrl)

	// Используем NoOpReader
	consumer := &Consumer{
		reader:     &NoOpReader{},
		storage:    mockStorage,
		cache:      mockCache,
		dlqWriter:  &kafka.Writer{}, // Инициализируем, чтобы избежать nil panic в тестах на DLQ
		maxRetries: 3,               // Устанавливаем значение, как в NewConsumer
		tracer:     otel.Tracer("test-tracer"),
	}

	return ctrl, consumer, mockCache, mockStorage
}

// helperTestOrder - заказ с незавершенной оплатой для тестов
func helperTestOrder() *model.Order {
	return &model.Order{
		OrderUID: "b563feb7-b2b8-4b6f-807c-9b63a11e81b9",
		UserID:   "user-1",
		Items: []model.OrderItem{
			{ID: 1, ProductID: "prod-1", Quantity: 1, UnitPrice: 40},
		},
		ShippingAddress: model.ShippingAddress{
			FullName: "Test User", Phone: "+911234567890", Street: "1 Main St",
			City: "Mumbai", State: "Maharashtra", ZipCode: "400001", Country: "India",
		},
		PaymentMethod: model.PaymentQR,
		ShippingCost:  5,
		TotalAmount:   45,
		OrderStatus:   model.StatusShipped,
		PaymentStatus: model.PaymentPending,
		CreatedAt:     time.Now().UTC(),
	}
}

func helperPaymentEvent(uid string, status model.PaymentStatus) kafka.Message {
	eventBytes, _ := json.Marshal(PaymentEvent{OrderUID: uid, PaymentStatus: status})
	return kafka.Message{Key: []byte(uid), Value: eventBytes}
}

func TestConsumer_ProcessMessage_Success(t *testing.T) {
	ctrl, consumer, mockCache, mockStorage := setupConsumerAndMocks(t)
	defer ctrl.Finish()

	order := helperTestOrder()
	msg := helperPaymentEvent(order.OrderUID, model.PaymentCompleted)

	// 1. Ожидаем чтение заказа
	mockStorage.EXPECT().GetOrderByUID(gomock.Any(), order.OrderUID).Return(order, nil)
	// 2. Ожидаем обновление платежного статуса
	mockStorage.EXPECT().UpdatePaymentStatus(gomock.Any(), order.OrderUID, model.PaymentCompleted).Return(nil)
	// 3. Ожидаем обновление кэша заказом с новым статусом
	mockCache.EXPECT().Set(gomock.Any(), order.OrderUID, gomock.Any()).Do(
		func(_ context.Context, _ string, value any) {
			cached, ok := value.(*model.Order)
			assert.True(t, ok)
			assert.Equal(t, model.PaymentCompleted, cached.PaymentStatus)
			// Статус выполнения заказа событие оплаты не трогает
			assert.Equal(t, model.StatusShipped, cached.OrderStatus)
		},
	).Times(1)

	err := consumer.processMessage(context.Background(), msg)
	assert.NoError(t, err)
}

func TestConsumer_ProcessMessage_Failed(t *testing.T) {
	ctrl, consumer, mockCache, mockStorage := setupConsumerAndMocks(t)
	defer ctrl.Finish()

	order := helperTestOrder()
	msg := helperPaymentEvent(order.OrderUID, model.PaymentFailed)

	mockStorage.EXPECT().GetOrderByUID(gomock.Any(), order.OrderUID).Return(order, nil)
	mockStorage.EXPECT().UpdatePaymentStatus(gomock.Any(), order.OrderUID, model.PaymentFailed).Return(nil)
	mockCache.EXPECT().Set(gomock.Any(), order.OrderUID, gomock.Any()).Times(1)

	err := consumer.processMessage(context.Background(), msg)
	assert.NoError(t, err)
}

func TestConsumer_ProcessMessage_BadJSON(t *testing.T) {
	ctrl, consumer, mockCache, mockStorage := setupConsumerAndMocks(t)
	defer ctrl.Finish()

	msg := kafka.Message{Value: []byte("this is not json")}

	// Не ожидаем вызовов БД или Кэша
	mockStorage.EXPECT().GetOrderByUID(gomock.Any(), gomock.Any()).Times(0)
	mockStorage.EXPECT().UpdatePaymentStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := consumer.processMessage(context.Background(), msg)

	// Ошибка не должна быть возвращена, т.к. это "poison pill"
	// Сообщение будет закоммичено (т.к. err == nil)
	assert.NoError(t, err)
}

func TestConsumer_ProcessMessage_ValidationError(t *testing.T) {
	ctrl, consumer, mockCache, mockStorage := setupConsumerAndMocks(t)
	defer ctrl.Finish()

	// Событие с недопустимым платежным статусом
	msg := helperPaymentEvent("b563feb7-b2b8-4b6f-807c-9b63a11e81b9", "refunded")

	mockStorage.EXPECT().GetOrderByUID(gomock.Any(), gomock.Any()).Times(0)
	mockStorage.EXPECT().UpdatePaymentStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := consumer.processMessage(context.Background(), msg)

	// Ошибка не должна быть возвращена, т.к. это "poison pill"
	assert.NoError(t, err)
}

func TestConsumer_ProcessMessage_MissingUID(t *testing.T) {
	ctrl, consumer, mockCache, mockStorage := setupConsumerAndMocks(t)
	defer ctrl.Finish()

	msg := helperPaymentEvent("", model.PaymentCompleted)

	mockStorage.EXPECT().GetOrderByUID(gomock.Any(), gomock.Any()).Times(0)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := consumer.processMessage(context.Background(), msg)
	assert.NoError(t, err)
}

func TestConsumer_ProcessMessage_OrderNotFound(t *testing.T) {
	ctrl, consumer, mockCache, mockStorage := setupConsumerAndMocks(t)
	defer ctrl.Finish()

	msg := helperPaymentEvent("missing-uid", model.PaymentCompleted)

	// Not found не ретраится - одного вызова достаточно
	mockStorage.EXPECT().GetOrderByUID(gomock.Any(), "missing-uid").
		Return(nil, database.ErrOrderNotFound).Times(1)
	mockStorage.EXPECT().UpdatePaymentStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := consumer.processMessage(context.Background(), msg)

	// Сообщение ушло в DLQ, ошибки нет
	assert.NoError(t, err)
}

func TestConsumer_ProcessMessage_TerminalPayment(t *testing.T) {
	ctrl, consumer, mockCache, mockStorage := setupConsumerAndMocks(t)
	defer ctrl.Finish()

	// Решение по оплате уже зафиксировано
	order := helperTestOrder()
	order.PaymentStatus = model.PaymentCompleted
	msg := helperPaymentEvent(order.OrderUID, model.PaymentFailed)

	mockStorage.EXPECT().GetOrderByUID(gomock.Any(), order.OrderUID).Return(order, nil)
	// Недопустимый переход - обновления БД и кэша быть не должно
	mockStorage.EXPECT().UpdatePaymentStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := consumer.processMessage(context.Background(), msg)
	assert.NoError(t, err)
}

func TestConsumer_ProcessMessage_DBError(t *testing.T) {
	ctrl, consumer, mockCache, mockStorage := setupConsumerAndMocks(t)
	defer ctrl.Finish()

	order := helperTestOrder()
	msg := helperPaymentEvent(order.OrderUID, model.PaymentCompleted)
	dbErr := errors.New("database connection failed")

	consumer.maxRetries = 3

	mockStorage.EXPECT().GetOrderByUID(gomock.Any(), order.OrderUID).Return(order, nil)
	mockStorage.EXPECT().UpdatePaymentStatus(gomock.Any(), order.OrderUID, model.PaymentCompleted).
		Return(dbErr).Times(consumer.maxRetries)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := consumer.processMessage(context.Background(), msg)

	// Ошибка не должна быть возвращена, т.к. сообщение ушло в DLQ
	assert.NoError(t, err)
}

func TestConsumer_ProcessMessage_DBError_RetryLogic(t *testing.T) {
	ctrl, consumer, mockCache, mockStorage := setupConsumerAndMocks(t)
	defer ctrl.Finish()

	order := helperTestOrder()
	msg := helperPaymentEvent(order.OrderUID, model.PaymentCompleted)
	dbErr := errors.New("temp db error")

	consumer.maxRetries = 3

	mockStorage.EXPECT().GetOrderByUID(gomock.Any(), order.OrderUID).Return(order, nil)
	// 1. Ожидаем 2 неудачных вызова
	mockStorage.EXPECT().UpdatePaymentStatus(gomock.Any(), order.OrderUID, model.PaymentCompleted).
		Return(dbErr).Times(2)
	// 2. Ожидаем 1 удачный вызов
	mockStorage.EXPECT().UpdatePaymentStatus(gomock.Any(), order.OrderUID, model.PaymentCompleted).
		Return(nil).Times(1)
	// 3. Ожидаем Set в кэш
	mockCache.EXPECT().Set(gomock.Any(), order.OrderUID, gomock.Any()).Times(1)

	err := consumer.processMessage(context.Background(), msg)

	// Ошибки нет, т.к. ретрай удался
	assert.NoError(t, err)
}
