package server

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/dobrv4er/woomfit/internal/tbank"
)

// registerValidations добавляет доменные правила к биндингу gin.
// ruphone — российский мобильный в любом привычном написании:
// +7 999 123-45-67, 89991234567, 9991234567.
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterValidation("ruphone", func(fl validator.FieldLevel) bool {
		normalized := tbank.NormalizePhone(fl.Field().String())
		return len(normalized) == 11 && strings.HasPrefix(normalized, "7")
	})
}
