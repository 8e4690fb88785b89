// Package credential hashes and verifies passwords, scores their strength and
// validates usernames. The functions are pure; Service adds a bounded pool so
// that CPU-heavy work cannot starve request handling.
package credential

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/notepid/twilight_forum/internal/domain"
)

const (
	// DefaultCost is the bcrypt work factor used outside tests.
	DefaultCost = 12

	// MinStrengthScore is the strongest zxcvbn tier; anything below is rejected.
	MinStrengthScore = 4

	// MaxScoredRunes caps the input handed to the strength estimator.
	MaxScoredRunes = 128

	// MaxPasswordBytes is the longest password bcrypt will accept.
	MaxPasswordBytes = 72

	MaxUsernameRunes = 32
)

// HashPassword hashes a plaintext password with bcrypt at the given cost.
// Every call uses a fresh salt.
func HashPassword(password string, cost int) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", domain.Invalid("password", fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a plaintext password against a bcrypt hash.
// A malformed hash is a mismatch.
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// StrongEnough reports whether password reaches MinStrengthScore.
// Only the first MaxScoredRunes runes are scored.
func StrongEnough(password string) bool {
	if password == "" {
		return false
	}
	return zxcvbn.PasswordStrength(truncateRunes(password, MaxScoredRunes), nil).Score >= MinStrengthScore
}

// ValidUsername reports whether s is 1-32 letters or digits.
func ValidUsername(s string) bool {
	n := utf8.RuneCountInString(s)
	if n == 0 || n > MaxUsernameRunes || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
