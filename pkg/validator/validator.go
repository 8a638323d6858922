// Package validator applies go-playground/validator rules to keyward request
// payloads and renders failures as client-facing messages.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Custom rule tags.
const (
	// PermissionNameTag accepts resource:action identifiers, case-insensitively.
	PermissionNameTag = "permission_name"
	// RoleNameTag accepts role names made of letters, digits, '.', '_' and '-'.
	RoleNameTag = "role_name"
	// FutureTag accepts timestamps strictly after the validator clock.
	FutureTag = "future"
)

var (
	once     sync.Once
	validate *validator.Validate

	// Now is the clock used by the future rule.
	Now = time.Now

	permissionNamePattern = regexp.MustCompile(`^[a-z0-9_.-]+:[a-z0-9_.*-]+$`)
	roleNamePattern       = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)
)

// ValidationError is a single field failure. Field is the JSON path of the value.
type ValidationError struct {
	Field string       `json:"field"`
	Tag   string       `json:"tag"`
	Param string       `json:"param"`
	Kind  reflect.Kind `json:"-"`
}

// Message renders the failure for API clients.
func (e ValidationError) Message() string {
	field := humanField(e.Field)
	switch e.Tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min", "max":
		bound := "at least"
		if e.Tag == "max" {
			bound = "at most"
		}
		unit := "characters"
		if e.Kind == reflect.Slice || e.Kind == reflect.Array || e.Kind == reflect.Map {
			unit = "entries"
		}
		return fmt.Sprintf("%s must be %s %s %s", field, bound, e.Param, unit)
	case "uuid", "uuid4":
		return field + " must be a valid UUID"
	case PermissionNameTag:
		return field + " must look like resource:action"
	case RoleNameTag:
		return field + " may only contain letters, digits, '.', '_' and '-'"
	case FutureTag:
		return field + " must be in the future"
	}
	if e.Param != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s failed validation: %s", field, e.Tag)
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	return strings.Join(v.Messages(), "; ")
}

// Messages returns one rendered message per failure.
func (v ValidationErrors) Messages() []string {
	out := make([]string, len(v))
	for i, failure := range v {
		out[i] = failure.Message()
	}
	return out
}

// ValidateStruct validates a struct using registered rules. Rule failures are
// returned as ValidationErrors.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	failures := make(ValidationErrors, 0, len(ve))
	for _, fe := range ve {
		failures = append(failures, ValidationError{
			Field: jsonPath(fe.Namespace()),
			Tag:   fe.Tag(),
			Param: fe.Param(),
			Kind:  fe.Kind(),
		})
	}
	return failures
}

// RegisterValidation exposes underlying validator custom rules.
func RegisterValidation(tag string, fn validator.Func) error {
	return getValidator().RegisterValidation(tag, fn)
}

// IsPermissionName reports whether value follows the resource:action convention.
func IsPermissionName(value string) bool {
	return permissionNamePattern.MatchString(value)
}

// IsRoleName reports whether value is an acceptable role name.
func IsRoleName(value string) bool {
	return roleNamePattern.MatchString(value)
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonName)
		_ = validate.RegisterValidation(PermissionNameTag, func(fl validator.FieldLevel) bool {
			return IsPermissionName(normalise(fl.Field().String()))
		})
		_ = validate.RegisterValidation(RoleNameTag, func(fl validator.FieldLevel) bool {
			return IsRoleName(normalise(fl.Field().String()))
		})
		_ = validate.RegisterValidation(FutureTag, func(fl validator.FieldLevel) bool {
			t, ok := fl.Field().Interface().(time.Time)
			return ok && t.After(Now())
		})
	})
	return validate
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// jsonPath drops the top-level struct name from a validator namespace.
func jsonPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func humanField(path string) string {
	if path == "" {
		return "field"
	}
	return strings.ToLower(strings.ReplaceAll(path, "_", " "))
}

func normalise(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
