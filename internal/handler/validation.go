package handler

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ISO 4217 alphabetic codes are three uppercase letters. Codes are treated
// as opaque labels; no list of known currencies is enforced.
var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// RegisterValidators installs the custom binding validators used by the
// request structs.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return currencyPattern.MatchString(fl.Field().String())
		})
	}
}
