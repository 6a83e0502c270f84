package checkout

import (
	"errors"
	"fmt"
	"strings"

	"storefront/internal/model"
	"storefront/internal/pricing"
	"storefront/internal/validator"

	playground "github.com/go-playground/validator/v10"
)

// DefaultCountry подставляется, если страна не указана.
const DefaultCountry = "India"

// FieldError - одно нарушение валидации с понятным оператору текстом.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError перечисляет все невалидные поля запроса разом, а не
// только первое, чтобы покупатель увидел полный список проблем.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "ошибка валидации заказа: " + strings.Join(parts, "; ")
}

// Builder собирает неизменяемый запрос на создание заказа из корзины,
// адреса и способа оплаты. Стоимость доставки и итоговая сумма
// считаются один раз в момент сборки. Билдер не хранит состояние между
// вызовами: каждый Build валидирует заново.
type Builder struct {
	pricing pricing.Config
}

// NewBuilder создает билдер с переданной конфигурацией расчета доставки.
func NewBuilder(cfg pricing.Config) *Builder {
	return &Builder{pricing: cfg}
}

// Build валидирует корзину и адрес и возвращает готовый к отправке в
// хранилище черновик заказа. При любом нарушении возвращает
// *ValidationError со всеми проблемными полями; черновик в этом случае
// не создается и хранилище не вызывается.
func (b *Builder) Build(userID string, items []model.OrderItem, addr model.ShippingAddress, method model.PaymentMethod) (*model.OrderDraft, error) {
	draft := &model.OrderDraft{
		UserID:          strings.TrimSpace(userID),
		Items:           snapshotItems(items),
		ShippingAddress: snapshotAddress(addr),
		PaymentMethod:   method,
	}

	if err := validator.ValidateStruct(draft); err != nil {
		var verrs playground.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, toValidationError(verrs)
		}
		return nil, err
	}

	draft.ShippingCost = b.pricing.ComputeShipping(draft.Items, draft.ShippingAddress)
	draft.TotalAmount = b.pricing.ComputeTotal(draft.Items, draft.ShippingCost)

	return draft, nil
}

// snapshotItems копирует позиции корзины в черновик: цены фиксируются
// на момент оформления, дальнейшие изменения корзины на черновик не
// влияют.
func snapshotItems(items []model.OrderItem) []model.OrderItem {
	if len(items) == 0 {
		return nil
	}
	snapshot := make([]model.OrderItem, len(items))
	for i, item := range items {
		copied := item
		copied.ID = 0
		copied.OrderUID = ""
		if len(item.Accessories) > 0 {
			copied.Accessories = make([]model.Accessory, len(item.Accessories))
			copy(copied.Accessories, item.Accessories)
		}
		snapshot[i] = copied
	}
	return snapshot
}

// snapshotAddress обрезает пробелы во всех полях и подставляет страну
// по умолчанию.
func snapshotAddress(addr model.ShippingAddress) model.ShippingAddress {
	snapshot := model.ShippingAddress{
		FullName: strings.TrimSpace(addr.FullName),
		Phone:    strings.ReplaceAll(strings.TrimSpace(addr.Phone), " ", ""),
		Street:   strings.TrimSpace(addr.Street),
		City:     strings.TrimSpace(addr.City),
		State:    strings.TrimSpace(addr.State),
		ZipCode:  strings.TrimSpace(addr.ZipCode),
		Country:  strings.TrimSpace(addr.Country),
	}
	if snapshot.Country == "" {
		snapshot.Country = DefaultCountry
	}
	return snapshot
}

// toValidationError переводит ошибки go-playground/validator в доменную
// ошибку со всеми полями сразу.
func toValidationError(verrs playground.ValidationErrors) *ValidationError {
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe),
			Message: fieldMessage(fe),
		})
	}
	return out
}

// fieldPath убирает имя корневой структуры из пути поля:
// "OrderDraft.Items[0].Quantity" -> "items[0].quantity".
func fieldPath(fe playground.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	segments := strings.Split(path, ".")
	for i, s := range segments {
		if s != "" {
			segments[i] = strings.ToLower(s[:1]) + s[1:]
		}
	}
	return strings.Join(segments, ".")
}

func fieldMessage(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "поле обязательно"
	case "min":
		if fe.Field() == "Items" {
			return "корзина пуста"
		}
		return fmt.Sprintf("значение меньше допустимого (%s)", fe.Param())
	case "gte", "gt":
		return "значение вне допустимого диапазона"
	case "oneof":
		return fmt.Sprintf("допустимые значения: %s", fe.Param())
	case "intlphone":
		return "неверный формат номера телефона"
	default:
		return fmt.Sprintf("не прошло проверку %q", fe.Tag())
	}
}
