package validation

import (
	"errors"
	"strings"
)

// ErrUsernameEmpty is returned when the username is empty or whitespace-only after trim.
var ErrUsernameEmpty = errors.New("username is required")

// ErrUsernameTooShort is returned when the username length is below the minimum.
var ErrUsernameTooShort = errors.New("username too short")

// ErrUsernameTooLong is returned when the username length exceeds the maximum.
var ErrUsernameTooLong = errors.New("username too long")

// ErrUsernameInvalidChars is returned when the username contains disallowed characters.
var ErrUsernameInvalidChars = errors.New("username contains invalid characters")

// ValidateUsername trims the input, enforces length bounds (minLen, maxLen in
// bytes), and restricts to ASCII letters, digits, hyphen and underscore. It
// returns the trimmed string or an error suitable for 400 responses. Case is
// preserved.
func ValidateUsername(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	n := len(s)
	if n == 0 {
		return "", ErrUsernameEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrUsernameTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrUsernameTooLong
	}
	for _, c := range s {
		if !isAllowedUsernameRune(c) {
			return "", ErrUsernameInvalidChars
		}
	}
	return s, nil
}

func isAllowedUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}
