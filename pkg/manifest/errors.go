package manifest

import (
	"errors"
	"fmt"
)

// SchemaError indicates a resource declaration is missing a required
// field or carries a malformed one.
type SchemaError struct {
	// Source is the file or package the resource came from.
	Source string

	// Resource identifies the offending resource, when known.
	Resource string

	// Field is the missing or malformed field.
	Field string

	// Reason describes the problem.
	Reason string
}

func (e *SchemaError) Error() string {
	loc := e.Resource
	if loc == "" {
		loc = e.Source
	}
	return fmt.Sprintf("invalid resource %s: field %q: %s", loc, e.Field, e.Reason)
}

// DuplicateResourceError indicates two declarations share the same
// (kind, namespace, name) identity.
type DuplicateResourceError struct {
	ID           ID
	FirstSource  string
	SecondSource string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("duplicate resource %s (declared in %s and %s)",
		e.ID, e.FirstSource, e.SecondSource)
}

// ParseError indicates a source document could not be decoded.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err belongs to the load/validate error
// taxonomy. The CLI maps these to its configuration-error exit code.
func IsValidation(err error) bool {
	var schemaErr *SchemaError
	var dupErr *DuplicateResourceError
	var parseErr *ParseError
	return errors.As(err, &schemaErr) || errors.As(err, &dupErr) || errors.As(err, &parseErr)
}
