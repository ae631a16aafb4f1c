package domain

import (
	"fmt"
	"strings"
)

// Role identifies which sender credential an identity represents.
type Role string

const (
	RolePrimary Role = "PRIMARY"
	RoleBackup  Role = "BACKUP"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	switch r {
	case RolePrimary, RoleBackup:
		return true
	}
	return false
}

func ParseRoleFromString(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.IsValid() {
		return "", fmt.Errorf("%w: invalid role %q", ErrValidation, s)
	}
	return role, nil
}

// Identity is a sender credential bound to a role. It is loaded once at
// startup and never mutated afterwards.
type Identity struct {
	Role    Role
	Address string
	Secret  string
}

func (i Identity) Validate() error {
	if !i.Role.IsValid() {
		return fmt.Errorf("%w: invalid role %q", ErrValidation, i.Role)
	}
	if !isAddress(i.Address) {
		return fmt.Errorf("%w: %s identity address %q is invalid", ErrValidation, strings.ToLower(i.Role.String()), i.Address)
	}
	return nil
}

// String never includes the secret.
func (i Identity) String() string {
	return fmt.Sprintf("%s<%s>", strings.ToLower(i.Role.String()), i.Address)
}

func isAddress(s string) bool {
	s = strings.TrimSpace(s)
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}
