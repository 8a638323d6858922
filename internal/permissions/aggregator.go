package permissions

import (
	"sort"
	"strings"

	"github.com/charlesng35/keyward/internal/models"
)

// Grants is an effective, deduplicated and sorted set of role and permission names.
type Grants struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether name is in the permission set.
func (g Grants) HasPermission(name string) bool {
	return containsSorted(g.Permissions, name)
}

// HasRole reports whether name is in the role set.
func (g Grants) HasRole(name string) bool {
	return containsSorted(g.Roles, name)
}

// ForPrincipal returns the union of permissions over the user's roles. The user graph
// must already carry Roles.Permissions; nothing is loaded here.
func ForPrincipal(user *models.User) Grants {
	if user == nil {
		return Grants{}
	}

	roles := newSet()
	perms := newSet()
	for _, role := range user.Roles {
		roles.add(role.Name)
		for _, perm := range role.Permissions {
			perms.add(perm.Name)
		}
	}
	return Grants{Roles: roles.sorted(), Permissions: perms.sorted()}
}

// ForAPIKey returns the key's direct permissions plus the permissions of its direct roles.
func ForAPIKey(key *models.APIKey) Grants {
	if key == nil {
		return Grants{}
	}

	roles := newSet()
	perms := newSet()
	for _, perm := range key.Permissions {
		perms.add(perm.Name)
	}
	for _, role := range key.Roles {
		roles.add(role.Name)
		for _, perm := range role.Permissions {
			perms.add(perm.Name)
		}
	}
	return Grants{Roles: roles.sorted(), Permissions: perms.sorted()}
}

// PreferKey picks the grants to evaluate when both credential kinds may be present.
// Each dimension uses the key-derived set when it is non-empty and falls back to the
// token snapshot otherwise.
func PreferKey(key, token *Grants) Grants {
	var out Grants
	if key != nil {
		out = *key
	}
	if token == nil {
		return out
	}
	if len(out.Permissions) == 0 {
		out.Permissions = token.Permissions
	}
	if len(out.Roles) == 0 {
		out.Roles = token.Roles
	}
	return out
}

// Normalize deduplicates and sorts a list of names, dropping blanks.
func Normalize(values []string) []string {
	set := newSet()
	for _, value := range values {
		set.add(value)
	}
	return set.sorted()
}

type set map[string]struct{}

func newSet() set {
	return make(set)
}

func (s set) add(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	s[value] = struct{}{}
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for value := range s {
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

func containsSorted(values []string, target string) bool {
	if sort.StringsAreSorted(values) {
		idx := sort.SearchStrings(values, target)
		return idx < len(values) && values[idx] == target
	}
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
