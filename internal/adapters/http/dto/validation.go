package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation wraps struct tag and Validatable failures.
	ErrValidation = errors.New("validation failed")

	// ErrBinding wraps JSON decoding failures.
	ErrBinding = errors.New("binding failed")
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator. Field names in its errors are the
// JSON names, and it knows the "duration" and "notempty" tags.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}

			return name
		})

		_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return true
			}

			_, err := time.ParseDuration(s)

			return err == nil
		})
		_ = validate.RegisterValidation("notempty", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})

	return validate
}

// Validatable is implemented by requests with rules struct tags cannot express.
type Validatable interface {
	Validate() error
}

// FieldError is what a Validatable returns for a single bad field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks v's struct tags.
func Validate(v any) error {
	if err := Validator().Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return nil
}

// ValidateAll checks struct tags and then, if v implements Validatable, its
// own rules.
func ValidateAll(v any) error {
	if err := Validate(v); err != nil {
		return err
	}

	if custom, ok := v.(Validatable); ok {
		if err := custom.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	return nil
}

// BindAndValidate decodes the JSON body into v and runs ValidateAll.
func BindAndValidate(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBinding, err)
	}

	return ValidateAll(v)
}

// IsValidationError reports whether err carries field-level failures.
func IsValidationError(err error) bool {
	var tagErrs validator.ValidationErrors
	var fieldErr *FieldError

	return errors.As(err, &tagErrs) || errors.As(err, &fieldErr)
}

// ValidationErrors flattens err into field path → message. Paths are
// relative to the request body, e.g. "routines[1].name".
func ValidationErrors(err error) map[string]string {
	fields := make(map[string]string)

	var tagErrs validator.ValidationErrors
	if errors.As(err, &tagErrs) {
		for _, fe := range tagErrs {
			path := fe.Field()
			if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
				path = rest
			}

			fields[path] = tagMessage(fe)
		}
	}

	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		fields[fieldErr.Field] = fieldErr.Message
	}

	return fields
}

var tagMessages = map[string]string{
	"required": "this field is required",
	"duration": "must be a duration such as 250ms or 1s",
	"notempty": "must not be empty",
	"dive":     "invalid element",
	"oneof":    "must be one of: %s",
	"gt":       "must be greater than %s",
	"gte":      "must be greater than or equal to %s",
	"lt":       "must be less than %s",
	"lte":      "must be less than or equal to %s",
}

func tagMessage(fe validator.FieldError) string {
	switch tag := fe.Tag(); tag {
	case "min", "max":
		bound := "at least"
		if tag == "max" {
			bound = "at most"
		}

		unit := ""
		if fe.Kind() == reflect.String {
			unit = " characters"
		}

		return fmt.Sprintf("must be %s %s%s", bound, fe.Param(), unit)
	default:
		msg, ok := tagMessages[tag]
		if !ok {
			return "failed validation: " + tag
		}

		if strings.Contains(msg, "%s") {
			return fmt.Sprintf(msg, fe.Param())
		}

		return msg
	}
}
