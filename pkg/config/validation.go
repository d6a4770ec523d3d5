package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ValidationError is one rejected setting, named by its environment variable
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors reports every rejected setting at once
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for i := range e {
		b.WriteString("\n  - ")
		b.WriteString(e[i].Error())
	}
	return b.String()
}

// Validator checks one group of settings
type Validator func() ValidationErrors

// Validate runs every validator and returns the combined ValidationErrors, or nil
func Validate(validators ...Validator) error {
	var all ValidationErrors
	for _, v := range validators {
		all = append(all, v()...)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

// CollectErrors drops the nil results of Require* checks
func CollectErrors(errs ...*ValidationError) ValidationErrors {
	var result ValidationErrors
	for _, err := range errs {
		if err != nil {
			result = append(result, *err)
		}
	}
	return result
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func RequireNonEmpty(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	return nil
}

func RequirePositive(field string, value int) *ValidationError {
	if value <= 0 {
		return invalid(field, "must be positive, got %d", value)
	}
	return nil
}

func RequirePositiveFloat(field string, value float64) *ValidationError {
	if value <= 0 {
		return invalid(field, "must be positive, got %g", value)
	}
	return nil
}

func RequirePositiveDuration(field string, value time.Duration) *ValidationError {
	if value <= 0 {
		return invalid(field, "must be a positive duration, got %s", value)
	}
	return nil
}

// RequireInRange checks min <= value <= max
func RequireInRange(field string, value, min, max int) *ValidationError {
	if value < min || value > max {
		return invalid(field, "must be between %d and %d, got %d", min, max, value)
	}
	return nil
}

// RequireValidURL wants an absolute URL with scheme and host
func RequireValidURL(field, value string) *ValidationError {
	u, err := url.Parse(value)
	switch {
	case value == "":
		return invalid(field, "is required")
	case err != nil:
		return invalid(field, "invalid URL: %v", err)
	case u.Scheme == "" || u.Host == "":
		return invalid(field, "must be an absolute URL such as https://host/path")
	}
	return nil
}

func RequireValidPort(field string, value uint16) *ValidationError {
	if value == 0 {
		return invalid(field, "port must be between 1 and 65535")
	}
	return nil
}

func RequireOneOf(field, value string, allowed []string) *ValidationError {
	if !slices.Contains(allowed, value) {
		return invalid(field, "must be one of %v, got %q", allowed, value)
	}
	return nil
}

func RequireMinLength(field, value string, minLength int) *ValidationError {
	if len(value) < minLength {
		return invalid(field, "must be at least %d characters, got %d", minLength, len(value))
	}
	return nil
}
