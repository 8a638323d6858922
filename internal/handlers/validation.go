package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/keyward/pkg/errors"
	"github.com/charlesng35/keyward/pkg/response"
	appValidator "github.com/charlesng35/keyward/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and applies its validate rules.
// On failure it writes a 400 naming the offending fields and returns false.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(decodeErrorMessage(err)))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(validationMessage(err)))
		return false
	}

	return true
}

func decodeErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s must be %s", humanField(typeErr.Field), jsonKind(typeErr.Type.Kind().String()))
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return "timestamps must be RFC3339, for example 2030-01-02T15:04:05Z"
	}
	return "invalid JSON payload"
}

func validationMessage(err error) string {
	var failures appValidator.ValidationErrors
	if errors.As(err, &failures) && len(failures) > 0 {
		return strings.Join(failures.Messages(), "; ")
	}
	return "invalid request payload"
}

func jsonKind(kind string) string {
	switch kind {
	case "slice", "array":
		return "a list"
	case "string":
		return "a string"
	case "bool":
		return "true or false"
	case "struct", "map":
		return "an object"
	default:
		return "a number"
	}
}

func humanField(path string) string {
	return strings.ToLower(strings.ReplaceAll(path, "_", " "))
}

// parseIntQuery reads an integer query parameter, returning fallback when absent or malformed.
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
