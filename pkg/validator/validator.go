package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._\-]{3,64}$`)

	textPolicy   = bluemonday.StrictPolicy()
	markupPolicy = bluemonday.UGCPolicy()
)

// ValidateStruct validates a struct based on validate tags.
// Supported rules: required, username, min=N, max=N (string length).
// Messages use the json tag name of the field when present.
func ValidateStruct(s interface{}) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return errors.New("not a struct")
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("validate")
		if tag == "" {
			continue
		}

		name := fieldName(field)
		for _, rule := range strings.Split(tag, ",") {
			if err := validateField(name, v.Field(i), rule); err != nil {
				return err
			}
		}
	}

	return nil
}

func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// validateField validates a single field based on a rule
func validateField(fieldName string, value reflect.Value, rule string) error {
	switch {
	case rule == "required":
		if isZero(value) {
			return fmt.Errorf("%s is required", fieldName)
		}
	case rule == "username":
		if value.Kind() == reflect.String && value.String() != "" {
			if err := ValidateUsername(value.String()); err != nil {
				return fmt.Errorf("%s: %w", fieldName, err)
			}
		}
	case strings.HasPrefix(rule, "min="):
		n, _ := strconv.Atoi(strings.TrimPrefix(rule, "min="))
		if value.Kind() == reflect.String && len(value.String()) < n {
			return fmt.Errorf("%s must be at least %d characters", fieldName, n)
		}
	case strings.HasPrefix(rule, "max="):
		n, _ := strconv.Atoi(strings.TrimPrefix(rule, "max="))
		if value.Kind() == reflect.String && len(value.String()) > n {
			return fmt.Errorf("%s must be at most %d characters", fieldName, n)
		}
	}
	return nil
}

// isZero checks if a value is zero/empty; blank strings count as empty
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return false
	}
}

// ValidateUsername validates a login name
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username must be 3-64 letters, digits, dots, dashes or underscores")
	}
	return nil
}

// ValidatePassword validates a password
func ValidatePassword(password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	return nil
}

// ValidateRequired validates that a field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// ValidateRange validates that n lies within [lo, hi]
func ValidateRange(field string, n, lo, hi int) error {
	if n < lo || n > hi {
		return fmt.Errorf("%s must be between %d and %d", field, lo, hi)
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// SanitizeText strips all markup from a plain text field such as a title,
// an abstract or a review justification
func SanitizeText(s string) string {
	return SanitizeString(textPolicy.Sanitize(s))
}

// SanitizeMarkup keeps user-content safe markup and drops scripts and
// unsafe attributes, for paper bodies
func SanitizeMarkup(s string) string {
	return SanitizeString(markupPolicy.Sanitize(s))
}
