package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks s against its `validate` tags. Slices are validated
// element by element and field names are prefixed with the element index.
func Validate(s any) error {
	rv := reflect.ValueOf(s)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		var all []fieldError
		for i := 0; i < rv.Len(); i++ {
			err := Validate(rv.Index(i).Interface())
			if err == nil {
				continue
			}
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				return fmt.Errorf("element %d: %w", i, err)
			}
			for _, fe := range valErr.errs {
				fe.field = fmt.Sprintf("[%d].%s", i, fe.field)
				all = append(all, fe)
			}
		}
		if len(all) > 0 {
			return &ValidationError{errs: all}
		}
		return nil
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errs := make([]fieldError, 0, len(validationErrors))
			for _, fe := range validationErrors {
				errs = append(errs, fieldError{field: fieldPath(fe), msg: msgForTag(fe)})
			}
			return &ValidationError{errs: errs}
		}
		return err
	}
	return nil
}

type fieldError struct {
	field string
	msg   string
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	errs []fieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.errs))
	for _, fe := range e.errs {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", fe.field, fe.msg))
	}
	return strings.Join(msgs, "; ")
}

// Fields returns a map of field paths to error messages.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.errs))
	for _, fe := range e.errs {
		fields[fe.field] = fe.msg
	}
	return fields
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "len":
		return fmt.Sprintf("must have length %s", fe.Param())
	case "uppercase":
		return "must be upper case"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}
