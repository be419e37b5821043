package routing

import (
	"whitelabel_crm_backend/internal/normalize"
	"whitelabel_crm_backend/platform/validator"

	playground "github.com/go-playground/validator/v10"
)

// RegisterValidations adds the routing struct tags:
// contactfield (one of the fixed contact fields) and leadtransform (a known transform).
func RegisterValidations(val *validator.Validator) error {
	if err := val.RegisterValidation("contactfield", func(fl playground.FieldLevel) bool {
		return normalize.IsContactField(fl.Field().String())
	}); err != nil {
		return err
	}
	return val.RegisterValidation("leadtransform", func(fl playground.FieldLevel) bool {
		return normalize.IsKnownTransform(fl.Field().String())
	})
}
