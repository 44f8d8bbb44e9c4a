package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	passwordCharset       = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"
	defaultPasswordLength = 16
)

// GeneratePassword returns a random password drawn from letters, digits and symbols.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = defaultPasswordLength
	}

	max := big.NewInt(int64(len(passwordCharset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		out[i] = passwordCharset[n.Int64()]
	}
	return string(out), nil
}

// GenerateUsername returns the panel username for a new account, e.g. user_1735689600000.
func GenerateUsername(now time.Time) string {
	return fmt.Sprintf("user_%d", now.UnixMilli())
}
