package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
)

const (
	RoleQueryReader = "query_reader"
	RoleAdmin       = "admin"
)

// Identity is the caller behind an API key.
type Identity struct {
	Subject string
	Roles   []string
}

func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role || candidate == RoleAdmin {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator checks keys configured through ASKQL_AUTH_STATIC_KEYS.
// Lookups compare every configured key in constant time.
type StaticAPIKeyValidator struct {
	keys []staticKey
}

type staticKey struct {
	secret   []byte
	identity Identity
}

// NewStaticAPIKeyValidator parses "key:subject:role|role" entries separated
// by commas.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	seen := map[string]struct{}{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	entries := strings.Split(spec, ",")
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:subject:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		subject := strings.TrimSpace(parts[1])
		if key == "" || subject == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/subject", entry)
		}
		roleParts := strings.Split(strings.TrimSpace(parts[2]), "|")
		roles := make([]string, 0, len(roleParts))
		for _, role := range roleParts {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			roles = append(roles, role)
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		sort.Strings(roles)
		if _, exists := seen[key]; exists {
			return nil, fmt.Errorf("invalid static key entry for subject %q: duplicate key", subject)
		}
		seen[key] = struct{}{}
		validator.keys = append(validator.keys, staticKey{
			secret:   []byte(key),
			identity: Identity{Subject: subject, Roles: roles},
		})
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	candidate := []byte(apiKey)
	var (
		match Identity
		found bool
	)
	for _, key := range v.keys {
		if subtle.ConstantTimeCompare(key.secret, candidate) == 1 {
			match = key.identity
			found = true
		}
	}
	return match, found
}
