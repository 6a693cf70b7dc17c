package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/teranos/provenance/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags on a record and converts failures into a single
// ValidationError naming every offending field.
func Validate(record interface{}) error {
	err := validatorInstance().Struct(record)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(errors.NewValidationError("invalid record"), err.Error())
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return errors.NewValidationError("%s", strings.Join(problems, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of [" + fe.Param() + "], got " + quote(fe.Value())
	case "excludes":
		return field + " may not contain " + quote(fe.Param())
	case "gte", "lte":
		return field + " must be " + fe.Tag() + " " + fe.Param()
	default:
		return field + " failed " + fe.Tag()
	}
}

func quote(v interface{}) string {
	return fmt.Sprintf("%q", fmt.Sprint(v))
}
