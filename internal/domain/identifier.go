package domain

import (
	"regexp"
	"strings"
)

var (
	tenDigits    = regexp.MustCompile(`^\d{10}$`)
	twelveDigits = regexp.MustCompile(`^\d{12}$`)
)

// Identifier agrupa los campos unicos con los que se busca un usuario.
// Solo los campos no vacios participan en la busqueda.
type Identifier struct {
	Email   string
	Mobile  string
	Aadhaar string
}

func (i Identifier) Empty() bool {
	return i.Email == "" && i.Mobile == "" && i.Aadhaar == ""
}

// ParseIdentifier clasifica lo que el usuario escribio en el login: con '@' es
// email, 10 digitos es movil y 12 digitos es Aadhaar. Un prefijo "+<cc>" se quita
// antes de clasificar el movil. Como mucho un campo queda poblado.
func ParseIdentifier(raw, countryCode string) Identifier {
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, "@") {
		return Identifier{Email: NormalizeEmail(trimmed)}
	}
	if m, ok := NormalizeMobile(trimmed, countryCode); ok {
		return Identifier{Mobile: m}
	}
	if twelveDigits.MatchString(trimmed) {
		return Identifier{Aadhaar: trimmed}
	}
	return Identifier{}
}

// NormalizeMobile devuelve los 10 digitos nacionales de un movil escrito como
// "9876543210" o "+<cc>9876543210".
func NormalizeMobile(raw, countryCode string) (string, bool) {
	m := strings.TrimSpace(raw)
	if cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+"); cc != "" {
		m = strings.TrimPrefix(m, "+"+cc)
	}
	if !tenDigits.MatchString(m) {
		return "", false
	}
	return m, true
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
