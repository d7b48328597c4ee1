package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"krishilok/internal/domain"
)

// RegistrationForm es el formulario de alta que el cliente conserva hasta
// confirmar el OTP; el servidor no guarda nada de el antes de la confirmacion.
type RegistrationForm struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Mobile    string `json:"mobile" validate:"required,mobile"`
	Aadhaar   string `json:"aadhaar" validate:"required,aadhaar"`
	Email     string `json:"email" validate:"required,emailaddr"`
	Password  string `json:"password" validate:"required,strongpassword"`
	State     string `json:"state" validate:"required"`
	District  string `json:"district" validate:"required"`
	Role      string `json:"role" validate:"required,role"`
}

// Normalize recorta espacios y pasa email y rol a minusculas. El password no se toca.
func (f RegistrationForm) Normalize() RegistrationForm {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Mobile = strings.TrimSpace(f.Mobile)
	f.Aadhaar = strings.TrimSpace(f.Aadhaar)
	f.Email = domain.NormalizeEmail(f.Email)
	f.State = strings.TrimSpace(f.State)
	f.District = strings.TrimSpace(f.District)
	f.Role = strings.ToLower(strings.TrimSpace(f.Role))
	return f
}

var (
	aadhaarPattern    = regexp.MustCompile(`^\d{12}$`)
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	passwordUpper     = regexp.MustCompile(`[A-Z]`)
	passwordLower     = regexp.MustCompile(`[a-z]`)
	passwordDigit     = regexp.MustCompile(`[0-9]`)
	passwordSymbols   = regexp.MustCompile(`[\W_]`)
	passwordLineBreak = regexp.MustCompile("[\r\n\u2028\u2029]")
)

// FormValidator aplica las reglas de formato del alta.
type FormValidator struct {
	validate    *validator.Validate
	countryCode string
	mobile      *regexp.Regexp
}

func NewFormValidator(countryCode string) *FormValidator {
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if cc == "" {
		cc = "91"
	}
	fv := &FormValidator{
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		countryCode: cc,
		mobile:      regexp.MustCompile(`^\+` + regexp.QuoteMeta(cc) + `\d{10}$`),
	}
	fv.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	mustRegister(fv.validate, "mobile", func(fl validator.FieldLevel) bool {
		return fv.mobile.MatchString(fl.Field().String())
	})
	mustRegister(fv.validate, "aadhaar", func(fl validator.FieldLevel) bool {
		return aadhaarPattern.MatchString(fl.Field().String())
	})
	mustRegister(fv.validate, "emailaddr", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(fv.validate, "strongpassword", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	})
	mustRegister(fv.validate, "role", func(fl validator.FieldLevel) bool {
		_, ok := domain.NormalizeRole(fl.Field().String())
		return ok
	})
	return fv
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}

func (fv *FormValidator) CountryCode() string {
	return fv.countryCode
}

// ValidateRegistration devuelve un *ValidationError con el primer campo invalido.
func (fv *FormValidator) ValidateRegistration(form RegistrationForm) error {
	err := fv.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return newValidationError(fe.Field(), fv.message(fe))
}

func (fv *FormValidator) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "All required fields must be filled."
	case "mobile":
		return fmt.Sprintf("Mobile must be +%s followed by 10 digits.", fv.countryCode)
	case "aadhaar":
		return "Aadhaar must be exactly 12 digits."
	case "emailaddr":
		return "Email must be a valid address."
	case "strongpassword":
		return "Password must meet complexity requirements."
	case "role":
		return "Role must be one of farmer, expert, admin or buyer."
	}
	return fmt.Sprintf("%s is invalid.", fe.Field())
}

// IsStrongPassword exige 8+ caracteres sin saltos de linea, con mayuscula,
// minuscula y digito ASCII y al menos un simbolo (cualquier cosa fuera de
// [A-Za-z0-9], o "_").
func IsStrongPassword(password string) bool {
	if passwordLineBreak.MatchString(password) || utf8.RuneCountInString(password) < 8 {
		return false
	}
	return passwordUpper.MatchString(password) &&
		passwordLower.MatchString(password) &&
		passwordDigit.MatchString(password) &&
		passwordSymbols.MatchString(password)
}
