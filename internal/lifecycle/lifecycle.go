package lifecycle

import (
	"fmt"

	"storefront/internal/model"
)

// TransitionError - отказ в смене статуса. Содержит исходный и целевой
// статусы, чтобы оператор видел, какой именно переход был отклонен.
type TransitionError struct {
	Machine string // "order" или "payment"
	From    string
	To      string
	Reason  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход статуса (%s): %q -> %q: %s", e.Machine, e.From, e.To, e.Reason)
}

var orderStatuses = map[model.OrderStatus]struct{}{
	model.StatusPending:    {},
	model.StatusProcessing: {},
	model.StatusShipped:    {},
	model.StatusDelivered:  {},
	model.StatusCancelled:  {},
}

var paymentStatuses = map[model.PaymentStatus]struct{}{
	model.PaymentPending:   {},
	model.PaymentCompleted: {},
	model.PaymentFailed:    {},
}

// ValidOrderStatus сообщает, известен ли статус выполнения заказа.
func ValidOrderStatus(s model.OrderStatus) bool {
	_, ok := orderStatuses[s]
	return ok
}

// ValidPaymentStatus сообщает, известен ли статус оплаты.
func ValidPaymentStatus(s model.PaymentStatus) bool {
	_, ok := paymentStatuses[s]
	return ok
}

// IsTerminal сообщает, является ли статус выполнения терминальным.
// Из терминального статуса переходы запрещены.
func IsTerminal(s model.OrderStatus) bool {
	return s == model.StatusDelivered || s == model.StatusCancelled
}

// IsPaymentTerminal сообщает, является ли статус оплаты терминальным.
func IsPaymentTerminal(s model.PaymentStatus) bool {
	return s == model.PaymentCompleted || s == model.PaymentFailed
}

// Transition применяет переход машины выполнения заказа и возвращает
// новое значение заказа. Исходный заказ не меняется.
//
// Оператор может переводить заказ между любыми нетерминальными
// статусами (в том числе "назад" - для исправления ошибок), но выход
// из delivered и cancelled запрещен. Трек-номер принимается только при
// переходе в shipped или delivered: непустое значение перезаписывает
// сохраненное, пустое оставляет прежнее. Статус оплаты этот переход
// не затрагивает.
func Transition(order model.Order, target model.OrderStatus, trackingNumber string) (model.Order, error) {
	if !ValidOrderStatus(target) {
		return order, &TransitionError{
			Machine: "order",
			From:    string(order.OrderStatus),
			To:      string(target),
			Reason:  "неизвестный целевой статус",
		}
	}

	if IsTerminal(order.OrderStatus) {
		return order, &TransitionError{
			Machine: "order",
			From:    string(order.OrderStatus),
			To:      string(target),
			Reason:  "заказ в терминальном статусе",
		}
	}

	updated := order
	updated.OrderStatus = target

	if (target == model.StatusShipped || target == model.StatusDelivered) && trackingNumber != "" {
		updated.TrackingNumber = trackingNumber
	}

	return updated, nil
}

// UpdatePaymentStatus применяет переход машины проверки оплаты и
// возвращает новое значение заказа. Машина оплаты полностью независима
// от машины выполнения: смена одного статуса никогда не меняет другой.
//
// Допустимые переходы: pending -> completed и pending -> failed.
// Результат проверки фиксируется один раз, completed и failed
// терминальны.
func UpdatePaymentStatus(order model.Order, target model.PaymentStatus) (model.Order, error) {
	if !ValidPaymentStatus(target) {
		return order, &TransitionError{
			Machine: "payment",
			From:    string(order.PaymentStatus),
			To:      string(target),
			Reason:  "неизвестный целевой статус",
		}
	}

	if IsPaymentTerminal(order.PaymentStatus) {
		return order, &TransitionError{
			Machine: "payment",
			From:    string(order.PaymentStatus),
			To:      string(target),
			Reason:  "результат проверки оплаты уже зафиксирован",
		}
	}

	updated := order
	updated.PaymentStatus = target
	return updated, nil
}
