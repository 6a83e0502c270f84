package pricing

import (
	"strings"

	"storefront/internal/model"
)

// fallbackRate - ставка доставки по умолчанию, если зоны не настроены.
// Осознанно не ноль: при некорректной конфигурации безопаснее взять
// консервативную ставку, чем отдать бесплатную доставку.
const fallbackRate = 25

// Zone - зона доставки с фиксированной ставкой. Зоны проверяются в
// порядке объявления, последняя зона с пустым набором ключевых слов
// служит зоной "по умолчанию" и совпадает всегда.
type Zone struct {
	Name     string
	Rate     float64
	Keywords []string
}

// Config - конфигурация расчета доставки. Порог бесплатной доставки и
// список зон передаются извне, чтобы расчет оставался чистой функцией.
type Config struct {
	FreeShippingThreshold float64
	Zones                 []Zone
}

// DefaultZones возвращает стандартный набор зон доставки.
func DefaultZones() []Zone {
	return []Zone{
		{Name: "Local (Same City)", Rate: 5, Keywords: []string{"mumbai", "delhi", "bangalore", "chennai", "kolkata", "hyderabad"}},
		{Name: "Metro Cities", Rate: 15, Keywords: []string{"pune", "ahmedabad", "surat", "jaipur", "lucknow", "kanpur"}},
		{Name: "Tier 2 Cities", Rate: 25, Keywords: []string{"nagpur", "indore", "thane", "bhopal", "visakhapatnam", "pimpri"}},
		{Name: "Remote Areas", Rate: 50, Keywords: nil}, // Зона по умолчанию для несовпавших городов
	}
}

// DefaultConfig возвращает конфигурацию со стандартными зонами и
// порогом бесплатной доставки.
func DefaultConfig(freeShippingThreshold float64) Config {
	return Config{
		FreeShippingThreshold: freeShippingThreshold,
		Zones:                 DefaultZones(),
	}
}

// ComputeShipping считает стоимость доставки для корзины и адреса.
// Правила:
//  1. Если подытог корзины не меньше порога - доставка бесплатна
//     независимо от адреса.
//  2. Иначе город и регион (без учета регистра) сверяются с ключевыми
//     словами зон в порядке приоритета; побеждает первая совпавшая.
//     Совпадение - по подстроке, так исторически работает витрина.
//  3. Если ни одна зона не совпала, применяется ставка последней зоны.
//
// Пустые или некорректные поля адреса не считаются ошибкой: они просто
// не совпадают ни с одним ключевым словом и уходят в зону по умолчанию.
func (c Config) ComputeShipping(items []model.OrderItem, addr model.ShippingAddress) float64 {
	if model.Subtotal(items) >= c.FreeShippingThreshold {
		return 0
	}

	if len(c.Zones) == 0 {
		return fallbackRate
	}

	city := strings.ToLower(strings.TrimSpace(addr.City))
	state := strings.ToLower(strings.TrimSpace(addr.State))

	for _, zone := range c.Zones {
		for _, keyword := range zone.Keywords {
			if strings.Contains(city, keyword) || strings.Contains(state, keyword) {
				return zone.Rate
			}
		}
	}

	// Зона по умолчанию - последняя в списке.
	return c.Zones[len(c.Zones)-1].Rate
}

// ComputeTotal считает итоговую сумму заказа: подытог плюс доставка.
// Налоги, скидки и конвертация валют не моделируются.
func (c Config) ComputeTotal(items []model.OrderItem, shippingCost float64) float64 {
	return model.Subtotal(items) + shippingCost
}
