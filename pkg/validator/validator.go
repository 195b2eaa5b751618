package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// bloodTypePattern accepts the shape of a blood type label. Whether the label
// is configured is decided by the compatibility matrix, not here.
var bloodTypePattern = regexp.MustCompile(`^\s*[A-Za-z0-9]{1,6}\s*[+-]?\s*$`)

// FieldError is one failed rule on one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required":  "field is required",
	"email":     "invalid email format",
	"min":       "value is too short",
	"max":       "value is too long",
	"oneof":     "value is not one of the allowed options",
	"bloodtype": "invalid blood type",
	"gt":        "value must be greater than zero",
}

// New returns a validator configured with the custom tags used by request
// models. Field names are reported by their json name.
func New() *validator.Validate {
	v := validator.New()
	configure(v)
	return v
}

// RegisterGin installs the custom tags on gin's binding validator.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}
	configure(v)
	return nil
}

func configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	// The pattern is static, registration cannot fail.
	_ = v.RegisterValidation("bloodtype", func(fl validator.FieldLevel) bool {
		return bloodTypePattern.MatchString(fl.Field().String())
	})
}

// Describe flattens validator errors into field messages. It returns nil for
// any other error.
func Describe(err error) []FieldError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		msg, ok := messages[e.Tag()]
		if !ok {
			msg = e.Error()
		}
		out = append(out, FieldError{Field: e.Field(), Message: msg})
	}
	return out
}
