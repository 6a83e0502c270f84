package model

import "time"

// OrderStatus - статус выполнения заказа (фулфилмент).
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus - независимый статус проверки оплаты.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentMethod - способ оплаты заказа.
type PaymentMethod string

const (
	PaymentCOD PaymentMethod = "cod" // Оплата при получении
	PaymentQR  PaymentMethod = "qr"  // Оплата по QR-коду, требует ручной проверки
)

// Accessory - дополнение к товару, выбранное покупателем.
type Accessory struct {
	ID     int     `json:"-" db:"id"`
	Name   string  `json:"name" db:"name" validate:"required"`
	Price  float64 `json:"price" db:"price" validate:"gte=0"`
	ItemID int     `json:"-" db:"item_id"`
}

// OrderItem - позиция заказа. Цена фиксируется в момент оформления
// и после создания заказа не пересчитывается.
type OrderItem struct {
	ID          int         `json:"-" db:"id"`
	ProductID   string      `json:"productId" db:"product_id" validate:"required"`
	Size        string      `json:"size" db:"size"`
	Quantity    int         `json:"quantity" db:"quantity" validate:"gte=1"`
	UnitPrice   float64     `json:"unitPrice" db:"unit_price" validate:"gt=0"`
	Accessories []Accessory `json:"accessories" db:"accessories" validate:"dive"`
	OrderUID    string      `json:"-" db:"order_uid"`
}

// LineTotal возвращает стоимость позиции:
// (цена товара + сумма дополнений) * количество.
func (i OrderItem) LineTotal() float64 {
	accessories := 0.0
	for _, a := range i.Accessories {
		accessories += a.Price
	}
	return (i.UnitPrice + accessories) * float64(i.Quantity)
}

// Subtotal возвращает сумму стоимостей всех позиций без доставки.
func Subtotal(items []OrderItem) float64 {
	total := 0.0
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}

// ShippingAddress - адрес доставки. Сохраняется как снимок на момент
// оформления, а не как ссылка на профиль пользователя.
type ShippingAddress struct {
	ID       int    `json:"-" db:"id"`
	FullName string `json:"fullName" db:"full_name" validate:"required"`
	Phone    string `json:"phone" db:"phone" validate:"required,intlphone"`
	Street   string `json:"street" db:"street" validate:"required"`
	City     string `json:"city" db:"city" validate:"required"`
	State    string `json:"state" db:"state" validate:"required"`
	ZipCode  string `json:"zipCode" db:"zip_code" validate:"required"`
	Country  string `json:"country" db:"country" validate:"required"`
}

// OrderDraft - неизменяемый запрос на создание заказа, собранный
// билдером оформления. Итоговая сумма посчитана один раз и передается
// в хранилище как есть.
type OrderDraft struct {
	UserID          string          `json:"userId" validate:"required"`
	Items           []OrderItem     `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" validate:"required,oneof=cod qr"`
	ShippingCost    float64         `json:"shippingCost" validate:"gte=0"`
	TotalAmount     float64         `json:"totalAmount" validate:"gte=0"`
}

// Order - созданный заказ. Идентификатор и время создания назначает
// хранилище. После создания меняются только статусы и трек-номер,
// остальные поля неизменяемы.
type Order struct {
	OrderUID        string          `json:"id" db:"order_uid"`
	UserID          string          `json:"userId" db:"user_id"`
	Items           []OrderItem     `json:"items" db:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress" db:"address"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" db:"payment_method"`
	ShippingCost    float64         `json:"shippingCost" db:"shipping_cost"`
	TotalAmount     float64         `json:"totalAmount" db:"total_amount"`
	OrderStatus     OrderStatus     `json:"orderStatus" db:"order_status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	TrackingNumber  string          `json:"trackingNumber,omitempty" db:"tracking_number"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
}
