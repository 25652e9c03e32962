package internal

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
)

// Code lengths the engine accepts for verification and IP-confirmation codes.
const (
	MinOTPDigits = 6
	MaxOTPDigits = 10
)

// ErrDigits is returned by NewOTP for a length outside MinOTPDigits..MaxOTPDigits.
var ErrDigits = errors.New("otp length out of range")

// NewOTP returns a decimal code of exactly digits characters, each digit
// uniform and independent. Random bytes of 250 or more are discarded so the
// reduction mod 10 carries no bias.
func NewOTP(digits int) (string, error) {
	if digits < MinOTPDigits || digits > MaxOTPDigits {
		return "", fmt.Errorf("%w: %d", ErrDigits, digits)
	}

	code := make([]byte, 0, digits)
	buf := make([]byte, digits+4)
	for len(code) < digits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			code = append(code, '0'+b%10)
			if len(code) == digits {
				break
			}
		}
	}
	return string(code), nil
}

// EqualCode compares a submitted code with the issued one in constant time
// for equal lengths.
func EqualCode(submitted, issued string) bool {
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(issued)) == 1
}
