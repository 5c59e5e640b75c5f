// Package validate holds the format and strength rules for account credentials
// and the cleanup applied to free-form catalog text.
package validate

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	maxEmailLen    = 255
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8

	// MaxDescriptionLen bounds a game description, in characters.
	MaxDescriptionLen = 1000

	// PasswordSpecials is the set of characters that satisfy the special-character rule.
	PasswordSpecials = `!@#$%^&*(),.?":{}|<>`
)

var (
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// Email reports whether s is a syntactically acceptable address.
func Email(s string) bool {
	if s == "" || len(s) > maxEmailLen {
		return false
	}
	if !emailRe.MatchString(s) || strings.Contains(s, "..") {
		return false
	}
	local := s[:strings.IndexByte(s, '@')]
	return !strings.HasPrefix(local, ".") && !strings.HasSuffix(local, ".")
}

// Username checks length and charset; the reason names the first violated rule.
func Username(s string) (bool, string) {
	n := len([]rune(s))
	switch {
	case n < minUsernameLen:
		return false, "username must be at least 3 characters long"
	case n > maxUsernameLen:
		return false, "username cannot exceed 50 characters"
	case !usernameRe.MatchString(s):
		return false, "username can only contain letters, numbers, and underscores"
	}
	return true, ""
}

// PasswordStrength applies the rules in order and reports the first failure.
func PasswordStrength(s string) (bool, string) {
	if len([]rune(s)) < minPasswordLen {
		return false, "password must be at least 8 characters long"
	}
	var upper, lower, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSpecials, r):
			special = true
		}
	}
	switch {
	case !upper:
		return false, "password must contain at least one uppercase letter"
	case !lower:
		return false, "password must contain at least one lowercase letter"
	case !digit:
		return false, "password must contain at least one number"
	case !special:
		return false, "password must contain at least one special character"
	}
	return true, ""
}

// CleanText drops invalid UTF-8 and control characters other than newline and
// tab, then trims surrounding space.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// Description cleans s and checks its length.
func Description(s string) (string, bool, string) {
	s = CleanText(s)
	if len([]rune(s)) > MaxDescriptionLen {
		return "", false, "description cannot exceed 1000 characters"
	}
	return s, true, ""
}
