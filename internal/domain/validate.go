package domain

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

var phoneCharsPattern = regexp.MustCompile(`^[0-9+\-/\s]+$`)

// Validator returns the shared validator with the inventory schema rules
// registered. Field names in errors are JSON names.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = newValidator()
	})
	return validate
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return Category(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("unit", func(fl validator.FieldLevel) bool {
		return Unit(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("phone_chars", func(fl validator.FieldLevel) bool {
		return phoneCharsPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone_digit", func(fl validator.FieldLevel) bool {
		return strings.ContainsAny(fl.Field().String(), "0123456789")
	})

	v.RegisterStructValidation(validateItemThresholds, ItemInput{})
	v.RegisterStructValidation(validateSinglePrimary, SupplierInput{})
	return v
}

func validateItemThresholds(sl validator.StructLevel) {
	in := sl.Current().Interface().(ItemInput)
	if in.MinQuantity != nil && in.MaxQuantity != nil && *in.MinQuantity > *in.MaxQuantity {
		sl.ReportError(in.MinQuantity, "minQuantity", "MinQuantity", "min_lte_max", "")
	}
}

func validateSinglePrimary(sl validator.StructLevel) {
	in := sl.Current().Interface().(SupplierInput)
	primaries := 0
	for _, c := range in.Contacts {
		if c.IsPrimary {
			primaries++
		}
	}
	if primaries > 1 {
		sl.ReportError(in.Contacts, "contacts", "Contacts", "single_primary", "")
	}
}

// ValidateItem checks an item payload before it is sent to the API.
func ValidateItem(in ItemInput) error {
	return validateStruct(in)
}

// ValidateSupplier checks a supplier payload before it is sent to the API.
func ValidateSupplier(in SupplierInput) error {
	return validateStruct(in)
}

// validateStruct runs the shared validator and converts failures into a
// *ValidationError keyed by JSON path.
func validateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return NewAppError(CodeInternal, "validate payload", err)
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		path := fieldPath(fe.Namespace())
		if _, seen := fields[path]; seen {
			continue
		}
		fields[path] = fieldMessage(path, fe)
	}
	return &ValidationError{Fields: fields}
}

// fieldPath drops the top-level type name from a validator namespace:
// "SupplierInput.contacts[0].email" becomes "contacts[0].email".
func fieldPath(namespace string) string {
	_, rest, ok := strings.Cut(namespace, ".")
	if !ok {
		return namespace
	}
	return rest
}

func fieldMessage(path string, fe validator.FieldError) string {
	inContact := strings.HasPrefix(path, "contacts[")
	field := fe.Field()

	switch {
	case inContact && field == "name":
		return "Contact name is required"
	case inContact && field == "email":
		return "Valid Email address is required"
	case field == "phone":
		switch fe.Tag() {
		case "min":
			return "Phone must be at least 3 characters"
		case "max":
			return "Phone must be at most 30 characters"
		case "phone_digit":
			return "Phone number must contain at least one digit"
		default:
			return "Invalid phone characters"
		}
	}

	switch fe.Tag() {
	case "single_primary":
		return "Only one primary contact is allowed"
	case "min_lte_max":
		return "Min quantity must be less than or equal to max quantity"
	case "category":
		return "Category is invalid"
	case "unit":
		return "Unit of measure is invalid"
	}

	switch field {
	case "sku":
		return "SKU is required"
	case "name":
		if strings.HasPrefix(fe.Namespace(), "SupplierInput.") {
			return "Company name is required"
		}
		return "Name is required"
	case "quantity":
		return "Quantity cannot be negative"
	case "minQuantity":
		return "Min quantity cannot be negative"
	case "maxQuantity":
		return "Max quantity cannot be negative"
	}
	return field + " is invalid"
}
