package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

const otpDigits = 6

var otpSpace = big.NewInt(1000000)

// generateOTP devuelve un codigo de 6 digitos uniforme en 000000-999999 y su hash
// salado "salt:hash" para persistir.
func generateOTP() (string, string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", "", err
	}
	code := fmt.Sprintf("%0*d", otpDigits, n.Int64())

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", "", err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	return code, saltStr + ":" + hashOTP(saltStr, code), nil
}

func hashOTP(salt, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func verifyOTP(code, stored string) bool {
	salt, expected, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashOTP(salt, code)), []byte(expected)) == 1
}

func isValidOTPCode(code string) bool {
	if len(code) != otpDigits {
		return false
	}
	for _, r := range code {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
