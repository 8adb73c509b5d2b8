package reviewable

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUpdateConflict  = errors.New("reviewable was updated by someone else")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("reviewable not found")
	ErrActorNotFound   = errors.New("actor not found")
	ErrVersionRequired = errors.New("version is required")
	ErrInvalidStatus   = errors.New("invalid reviewable status")
	ErrUnknownKind     = errors.New("unknown reviewable kind")
	ErrDuplicateKind   = errors.New("reviewable kind already registered")
)

// InvalidActionError reports an action that is not offered to the actor or
// has no handler. It only names the requested id, never the valid ones, and
// matches ErrForbidden so callers treat it as an access failure.
type InvalidActionError struct {
	ActionID string
	Kind     string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("can't perform `%s` on %s", e.ActionID, e.Kind)
}

func (e *InvalidActionError) Is(target error) bool {
	return target == ErrForbidden
}

// FieldErrors maps a field path to its messages.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field string, message string) {
	f[field] = append(f[field], message)
}

func (f FieldErrors) Empty() bool { return len(f) == 0 }

// Messages flattens the errors as "field message", sorted by field.
func (f FieldErrors) Messages() []string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([]string, 0, len(fields))
	for _, field := range fields {
		for _, message := range f[field] {
			out = append(out, field+" "+message)
		}
	}
	return out
}

type ValidationError struct {
	Fields FieldErrors
}

func NewValidationError(field string, message string) *ValidationError {
	fields := FieldErrors{}
	fields.Add(field, message)
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields.Messages(), "; ")
}

// AsValidation extracts field errors from err, if it carries any.
func AsValidation(err error) (FieldErrors, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields, true
	}
	return nil, false
}
