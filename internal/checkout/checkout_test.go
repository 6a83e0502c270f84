package checkout

import (
	"testing"

	"storefront/internal/model"
	"storefront/internal/pricing"

	"github.com/stretchr/testify/assert"
)

func newTestBuilder() *Builder {
	return NewBuilder(pricing.DefaultConfig(100))
}

func validAddress() model.ShippingAddress {
	return model.ShippingAddress{
		FullName: "Test User",
		Phone:    "+911234567890",
		Street:   "1 Main St",
		City:     "Mumbai",
		State:    "Maharashtra",
		ZipCode:  "400001",
	}
}

func validItems() []model.OrderItem {
	return []model.OrderItem{
		{ProductID: "p-1", Size: "M", Quantity: 2, UnitPrice: 15, Accessories: []model.Accessory{
			{Name: "Gift wrap", Price: 5},
		}},
	}
}

func TestBuild_Success(t *testing.T) {
	builder := newTestBuilder()

	draft, err := builder.Build("user-1", validItems(), validAddress(), model.PaymentCOD)
	assert.NoError(t, err)
	assert.NotNil(t, draft)

	// Подытог (15+5)*2 = 40, Mumbai -> 5, итог 45.
	assert.Equal(t, 5.0, draft.ShippingCost)
	assert.Equal(t, 45.0, draft.TotalAmount)
	assert.Equal(t, "user-1", draft.UserID)
	assert.Equal(t, model.PaymentCOD, draft.PaymentMethod)
	// Страна по умолчанию.
	assert.Equal(t, DefaultCountry, draft.ShippingAddress.Country)
}

func TestBuild_EmptyCart(t *testing.T) {
	builder := newTestBuilder()

	draft, err := builder.Build("user-1", nil, validAddress(), model.PaymentCOD)
	assert.Nil(t, draft)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 1)
	assert.Equal(t, "items", verr.Fields[0].Field)
}

// Все проблемные поля возвращаются одним списком, а не по одному.
func TestBuild_CollectsAllErrors(t *testing.T) {
	builder := newTestBuilder()

	addr := model.ShippingAddress{
		FullName: "   ",
		Phone:    "0123",
		Street:   "",
		City:     "Mumbai",
		State:    "MH",
		ZipCode:  "",
	}

	draft, err := builder.Build("user-1", validItems(), addr, model.PaymentQR)
	assert.Nil(t, draft)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	fields := make(map[string]bool)
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["shippingAddress.fullName"], "пустое имя должно попасть в список: %v", verr.Fields)
	assert.True(t, fields["shippingAddress.phone"], "телефон с ведущим нулем должен попасть в список: %v", verr.Fields)
	assert.True(t, fields["shippingAddress.street"], "пустая улица должна попасть в список: %v", verr.Fields)
	assert.True(t, fields["shippingAddress.zipCode"], "пустой индекс должен попасть в список: %v", verr.Fields)
	assert.GreaterOrEqual(t, len(verr.Fields), 4)
}

func TestBuild_PhoneValidation(t *testing.T) {
	builder := newTestBuilder()

	valid := []string{"+911234567890", "911234567890", "1", "+1", "1234567890123456"}
	for _, phone := range valid {
		addr := validAddress()
		addr.Phone = phone
		_, err := builder.Build("user-1", validItems(), addr, model.PaymentCOD)
		assert.NoError(t, err, "телефон %q должен проходить", phone)
	}

	invalid := []string{"", "0123456789", "+0123", "12345678901234567", "abc", "+91-123"}
	for _, phone := range invalid {
		addr := validAddress()
		addr.Phone = phone
		_, err := builder.Build("user-1", validItems(), addr, model.PaymentCOD)
		assert.Error(t, err, "телефон %q должен отклоняться", phone)
	}

	// Пробелы внутри номера убираются до проверки, как на витрине.
	addr := validAddress()
	addr.Phone = "+91 1234 567 890"
	draft, err := builder.Build("user-1", validItems(), addr, model.PaymentCOD)
	assert.NoError(t, err)
	assert.Equal(t, "+911234567890", draft.ShippingAddress.Phone)
}

func TestBuild_InvalidPaymentMethod(t *testing.T) {
	builder := newTestBuilder()

	_, err := builder.Build("user-1", validItems(), validAddress(), model.PaymentMethod("card"))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "paymentMethod", verr.Fields[0].Field)
}

func TestBuild_InvalidItems(t *testing.T) {
	builder := newTestBuilder()

	items := []model.OrderItem{
		{ProductID: "", Quantity: 0, UnitPrice: 0},
	}
	_, err := builder.Build("user-1", items, validAddress(), model.PaymentCOD)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	// productId, quantity и unitPrice - три нарушения в одной позиции.
	assert.GreaterOrEqual(t, len(verr.Fields), 3)
}

func TestBuild_SnapshotIsIndependent(t *testing.T) {
	builder := newTestBuilder()
	items := validItems()

	draft, err := builder.Build("user-1", items, validAddress(), model.PaymentCOD)
	assert.NoError(t, err)

	// Изменения корзины после сборки не затрагивают черновик.
	items[0].UnitPrice = 999
	items[0].Accessories[0].Price = 999
	assert.Equal(t, 15.0, draft.Items[0].UnitPrice)
	assert.Equal(t, 5.0, draft.Items[0].Accessories[0].Price)
}

func TestBuild_TrimsAddress(t *testing.T) {
	builder := newTestBuilder()

	addr := model.ShippingAddress{
		FullName: "  Test User  ",
		Phone:    " +911234567890 ",
		Street:   " 1 Main St ",
		City:     " Mumbai ",
		State:    " Maharashtra ",
		ZipCode:  " 400001 ",
		Country:  " ",
	}

	draft, err := builder.Build("user-1", validItems(), addr, model.PaymentCOD)
	assert.NoError(t, err)
	assert.Equal(t, "Test User", draft.ShippingAddress.FullName)
	assert.Equal(t, "Mumbai", draft.ShippingAddress.City)
	assert.Equal(t, DefaultCountry, draft.ShippingAddress.Country)

	// Обрезанный город корректно попадает в расчет зоны.
	assert.Equal(t, 5.0, draft.ShippingCost)
}

func TestBuild_FreeShippingAboveThreshold(t *testing.T) {
	builder := newTestBuilder()

	items := []model.OrderItem{{ProductID: "p-1", Quantity: 1, UnitPrice: 120}}
	draft, err := builder.Build("user-1", items, validAddress(), model.PaymentQR)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, draft.ShippingCost)
	assert.Equal(t, 120.0, draft.TotalAmount)
}
