package permissions

import (
	"fmt"
	"strings"

	apperrors "github.com/charlesng35/keyward/pkg/errors"
)

// Requirement is a predicate over effective grants attached to a route.
type Requirement interface {
	// Evaluate returns nil when the grants satisfy the requirement, otherwise an
	// InsufficientGrant error naming only the unmet requirement.
	Evaluate(g Grants) error
	String() string
}

// AllOf requires every listed permission. An empty list is vacuously satisfied.
func AllOf(perms ...string) Requirement {
	return allOf(Normalize(perms))
}

// AnyOf requires at least one listed role. An empty list can never be satisfied.
func AnyOf(roles ...string) Requirement {
	return anyOf(Normalize(roles))
}

type allOf []string

func (r allOf) Evaluate(g Grants) error {
	var missing []string
	for _, perm := range r {
		if !g.HasPermission(perm) {
			missing = append(missing, perm)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewInsufficientGrant("permissions", missing)
	}
	return nil
}

func (r allOf) String() string {
	return fmt.Sprintf("all_of(%s)", strings.Join(r, ","))
}

type anyOf []string

func (r anyOf) Evaluate(g Grants) error {
	for _, role := range r {
		if g.HasRole(role) {
			return nil
		}
	}
	return apperrors.ErrInsufficientGrant.WithMessage(fmt.Sprintf("Requires one of roles: [%s]", strings.Join(r, ", ")))
}

func (r anyOf) String() string {
	return fmt.Sprintf("any_of(%s)", strings.Join(r, ","))
}

// Check evaluates every requirement in order and returns the first failure.
func Check(g Grants, requirements ...Requirement) error {
	for _, req := range requirements {
		if req == nil {
			continue
		}
		if err := req.Evaluate(g); err != nil {
			return err
		}
	}
	return nil
}
