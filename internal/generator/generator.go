package generator

import (
	"fmt"

	"storefront/internal/model"

	"github.com/brianvoe/gofakeit/v6"
)

// zoneCities - города, попадающие в разные зоны доставки, плюс
// несколько "неизвестных" городов для зоны Remote Areas.
var zoneCities = []string{
	"Mumbai", "Delhi", "Bangalore", "Chennai", "Kolkata", "Hyderabad",
	"Pune", "Ahmedabad", "Surat", "Jaipur", "Lucknow", "Kanpur",
	"Nagpur", "Indore", "Thane", "Bhopal", "Visakhapatnam", "Pimpri",
	"Shillong", "Leh", "Port Blair",
}

var itemSizes = []string{"S", "M", "L", "XL"}

var accessoryNames = []string{"Gift wrap", "Extra strap", "Carry case", "Engraving"}

// NewDraftRequest создает случайный запрос на оформление заказа.
// Эта функция инкапсулирует всю логику генерации тестовых данных.
func NewDraftRequest() (items []model.OrderItem, addr model.ShippingAddress, method model.PaymentMethod) {
	// Инициализируем gofakeit, если это еще не сделано (на всякий случай)
	gofakeit.Seed(0)

	// 1. Генерируем состав заказа (Items)
	itemCount := gofakeit.Number(1, 4) // От 1 до 4 товаров
	for i := 0; i < itemCount; i++ {
		item := model.OrderItem{
			ProductID: gofakeit.UUID(),
			Size:      gofakeit.RandomString(itemSizes),
			Quantity:  gofakeit.Number(1, 3),
			// Цены по обе стороны порога бесплатной доставки
			UnitPrice: float64(gofakeit.Number(500, 15000)) / 100,
		}

		// Иногда добавляем дополнения к товару
		if gofakeit.Bool() {
			item.Accessories = []model.Accessory{
				{
					Name:  gofakeit.RandomString(accessoryNames),
					Price: float64(gofakeit.Number(100, 1000)) / 100,
				},
			}
		}
		items = append(items, item)
	}

	// 2. Генерируем адрес доставки. Город берем из списка, чтобы
	// покрывались все зоны доставки.
	addr = model.ShippingAddress{
		FullName: gofakeit.Name(),
		Phone:    fmt.Sprintf("+91%d", gofakeit.Number(1000000000, 9999999999)),
		Street:   gofakeit.Street(),
		City:     gofakeit.RandomString(zoneCities),
		State:    gofakeit.State(),
		ZipCode:  gofakeit.Zip(),
		Country:  "India",
	}

	// 3. Способ оплаты
	method = model.PaymentMethod(gofakeit.RandomString([]string{"cod", "qr"}))

	return items, addr, method
}

// NewPaymentStatus возвращает случайный итог оплаты (completed чаще, чем failed).
func NewPaymentStatus() model.PaymentStatus {
	if gofakeit.Number(1, 10) <= 8 {
		return model.PaymentCompleted
	}
	return model.PaymentFailed
}
