package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"strings"
)

// codeAlphabet is uppercase alphanumeric; codes are compared case-insensitively
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateVerificationCode returns a cryptographically random code of length n
func GenerateVerificationCode(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// HashVerificationCode returns the hex SHA-256 of the normalised code
func HashVerificationCode(code string) string {
	sum := sha256.Sum256([]byte(normalizeCode(code)))
	return hex.EncodeToString(sum[:])
}

// verificationCodeMatches compares in constant time against the stored hash
func verificationCodeMatches(storedHash, code string) bool {
	got := HashVerificationCode(code)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(got)) == 1
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
