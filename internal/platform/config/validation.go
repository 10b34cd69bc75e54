package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldMessages renders a failed tag. The first %s is the field path, the
// second the tag parameter.
var fieldMessages = map[string]string{
	"required":      "%s is required",
	"required_if":   "%s is required when %s",
	"required_with": "%s is required when %s is set",
	"min":           "%s must be at least %s",
	"max":           "%s must be at most %s",
	"oneof":         "%s must be one of: %s",
	"url":           "%s must be a valid URL",
	"hostname_port": "%s must be host:port",
}

// Validate reports every invalid field at once. The service refuses to
// start on error.
func (c *Config) Validate() error {
	err := validate.Struct(c)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	lines := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		lines[i] = describe(fe)
	}

	return fmt.Errorf("config validation failed:\n  %s", strings.Join(lines, "\n  "))
}

func describe(fe validator.FieldError) string {
	path := formatFieldPath(fe.Namespace())

	msg, ok := fieldMessages[fe.Tag()]
	if !ok {
		return path + " failed validation: " + fe.Tag()
	}

	param := fe.Param()
	if fe.Tag() == "required_with" {
		param = strings.ToLower(param)
	}

	if strings.Count(msg, "%s") == 1 {
		return fmt.Sprintf(msg, path)
	}

	return fmt.Sprintf(msg, path, param)
}

// formatFieldPath turns "Config.Server.Port" into "server.port".
func formatFieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		namespace = rest
	}

	return strings.ToLower(namespace)
}
