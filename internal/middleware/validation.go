package middleware

import (
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/careportal-api/internal/model"
)

// ValidationConfig represents validation configuration
type ValidationConfig struct {
	MinPasswordLength int
	CustomValidators  map[string]validator.Func
}

// RegisterValidators installs the custom binding tags on gin's validator:
// access_level accepts an empty value or a known level, password enforces
// the configured minimum length. Field names in errors follow json tags.
func RegisterValidators(config ValidationConfig) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	minLen := config.MinPasswordLength
	validators := map[string]validator.Func{
		"access_level": func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || model.AccessLevel(s).Valid()
		},
		"password": func(fl validator.FieldLevel) bool {
			return utf8.RuneCountInString(fl.Field().String()) >= minLen
		},
	}
	for tag, fn := range config.CustomValidators {
		validators[tag] = fn
	}
	for tag, fn := range validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return nil
}
