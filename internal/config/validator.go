package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// settingsSchemaURL identifies the embedded schema inside the compiler.
const settingsSchemaURL = "https://rentalpipeline.dev/schemas/basic-cleaning/settings.json"

//go:embed schema/settings-schema.json
var settingsSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// loadSchema compiles the embedded schema once.
func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(settingsSchema))
		if err != nil {
			schemaErr = fmt.Errorf("failed to parse embedded schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(settingsSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(settingsSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("failed to compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// ValidateSettings validates parsed settings against the embedded schema.
// An empty document is valid: every key has a default.
func ValidateSettings(data map[string]interface{}) *ValidationResult {
	if data == nil {
		data = map[string]interface{}{}
	}

	schema, err := loadSchema()
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{
			Path:    "/",
			Type:    "schema",
			Message: fmt.Sprintf("failed to load schema: %v", err),
		}}}
	}

	err = schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &ValidationResult{Errors: []ValidationError{{Path: "/", Type: "validation", Message: err.Error()}}}
	}
	return &ValidationResult{Errors: flattenValidationError(verr, nil)}
}

// flattenValidationError walks the cause tree depth first and keeps every
// node that carries its own error kind.
func flattenValidationError(err *jsonschema.ValidationError, out []ValidationError) []ValidationError {
	if err.ErrorKind != nil {
		path := "/"
		if len(err.InstanceLocation) > 0 {
			path = "/" + strings.Join(err.InstanceLocation, "/")
		}
		out = append(out, ValidationError{
			Path:    path,
			Type:    errorType(err.Error()),
			Message: err.Error(),
		})
	}
	for _, cause := range err.Causes {
		out = flattenValidationError(cause, out)
	}
	return out
}

// errorType maps a validator message to a short keyword name.
func errorType(message string) string {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "additional properties"):
		return "additionalProperties"
	case strings.Contains(msg, "missing property"), strings.Contains(msg, "required"):
		return "required"
	case strings.Contains(msg, "does not match pattern"):
		return "pattern"
	case strings.Contains(msg, "value must be one of"), strings.Contains(msg, "value must be"):
		return "enum"
	case strings.Contains(msg, "got ") && strings.Contains(msg, "want "):
		return "type"
	default:
		return "validation"
	}
}
