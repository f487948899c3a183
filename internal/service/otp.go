package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const otpLength = 6

var ten = big.NewInt(10)

// generateOTP draws each digit independently from crypto/rand. Repeated
// digits are fine; unpredictability is the only requirement.
func generateOTP() (string, error) {
	code := make([]byte, otpLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate verification code: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
