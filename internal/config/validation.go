package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateRequired checks if a required string field is not empty.
func ValidateRequired(field, value, context string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", context),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values.
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

var validAuthMethods = []string{"client_secret_basic", "client_secret_post", ""}

// Validate checks a loaded Config for the constraints the rest of the
// server assumes hold: a bind address, a non-negative SSE buffer size, and
// well-formed OAuth client registrations when the authorization server
// is enabled.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if err := ValidateRequired("http.addr", cfg.HTTP.Addr, "http"); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if cfg.SSE.BufferSize < 0 {
		errs.Add("sse.bufferSize", "must not be negative", cfg.SSE.BufferSize)
	}

	if cfg.OAuth.Enabled {
		if err := ValidateRequired("oauth.issuer", cfg.OAuth.Issuer, "oauth"); err != nil {
			errs = append(errs, err.(ValidationError))
		}
		if err := ValidateRequired("oauth.signingKey", cfg.OAuth.SigningKey, "oauth"); err != nil {
			errs = append(errs, err.(ValidationError))
		}
		for _, c := range cfg.OAuth.Clients {
			if err := ValidateRequired("oauth.clients[].clientID", c.ClientID, "oauth client"); err != nil {
				errs = append(errs, err.(ValidationError))
			}
			if err := ValidateOneOf("oauth.clients[].tokenEndpointAuthMethod", c.TokenEndpointAuthMethod, validAuthMethods); err != nil {
				errs = append(errs, err.(ValidationError))
			}
		}
	}

	for _, m := range cfg.M2M {
		if err := ValidateRequired("m2m[].name", m.Name, "m2m client"); err != nil {
			errs = append(errs, err.(ValidationError))
		}
		if err := ValidateRequired("m2m[].tokenEndpoint", m.TokenEndpoint, "m2m client"); err != nil {
			errs = append(errs, err.(ValidationError))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
