package domain

import (
	"fmt"
	"strings"
)

const (
	RoleFarmer = "farmer"
	RoleExpert = "expert"
	RoleAdmin  = "admin"
	RoleBuyer  = "buyer"
)

var knownRoles = map[string]struct{}{
	RoleFarmer: {},
	RoleExpert: {},
	RoleAdmin:  {},
	RoleBuyer:  {},
}

// NormalizeRole pasa el rol a minusculas y lo valida contra el catalogo.
func NormalizeRole(role string) (string, bool) {
	r := strings.ToLower(strings.TrimSpace(role))
	_, ok := knownRoles[r]
	return r, ok
}

// FormatDisplayID arma ROLE_NNN con al menos tres digitos.
func FormatDisplayID(role string, seq int64) string {
	return fmt.Sprintf("%s_%03d", strings.ToUpper(strings.TrimSpace(role)), seq)
}
