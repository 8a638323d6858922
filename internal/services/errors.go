package services

import (
	"errors"
	"net/http"

	"github.com/charlesng35/keyward/internal/store"
	apperrors "github.com/charlesng35/keyward/pkg/errors"
)

var (
	// ErrAPIKeyNotFound covers both absent keys and keys owned by someone else.
	ErrAPIKeyNotFound = apperrors.New("API_KEY_NOT_FOUND", "API key not found", http.StatusNotFound)
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = apperrors.New("ROLE_NOT_FOUND", "Role not found", http.StatusNotFound)
	// ErrPermissionNotFound indicates the requested permission does not exist.
	ErrPermissionNotFound = apperrors.New("PERMISSION_NOT_FOUND", "Permission not found", http.StatusNotFound)

	ErrUserExists       = apperrors.New("USER_EXISTS", "User already exists", http.StatusBadRequest)
	ErrRoleExists       = apperrors.New("ROLE_EXISTS", "Role already exists", http.StatusBadRequest)
	ErrPermissionExists = apperrors.New("PERMISSION_EXISTS", "Permission already exists", http.StatusBadRequest)
)

// storeError maps store sentinels onto client-facing errors, wrapping anything else.
func storeError(err error, notFound, duplicate *apperrors.AppError, op string) error {
	switch {
	case err == nil:
		return nil
	case notFound != nil && errors.Is(err, store.ErrNotFound):
		return notFound.WithInternal(err)
	case duplicate != nil && errors.Is(err, store.ErrDuplicate):
		return duplicate.WithInternal(err)
	default:
		return apperrors.Wrap(err, op)
	}
}
