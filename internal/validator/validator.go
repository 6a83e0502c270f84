package validator

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Форма международного телефона: необязательный "+", первая цифра не
// ноль, всего от 1 до 16 цифр.
var phoneRegexp = regexp.MustCompile(`^\+?[1-9][0-9]{0,15}$`)

var (
	validate *validator.Validate
	once     sync.Once
)

// getInstance возвращает синглтон-экземпляр валидатора с
// зарегистрированными доменными правилами.
func getInstance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		// Регистрация не может вернуть ошибку для непустого тега и
		// ненулевой функции, но сигнатура ее требует.
		_ = validate.RegisterValidation("intlphone", func(fl validator.FieldLevel) bool {
			return phoneRegexp.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct выполняет валидацию по тегам структуры.
func ValidateStruct(s interface{}) error {
	return getInstance().Struct(s)
}
