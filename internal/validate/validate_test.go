package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	t.Parallel()

	good := []string{"alice@example.com", "a.b+c@sub.example.org", "x_y%z@host-1.io"}
	for _, s := range good {
		assert.True(t, Email(s), s)
	}

	bad := []string{
		"",
		"plainaddress",
		"@example.com",
		"alice@",
		"alice@example",
		"alice@example.c",
		"alice..bob@example.com",
		".alice@example.com",
		"alice.@example.com",
		"alice@exa..mple.com",
		"alice@@example.com",
		strings.Repeat("a", 250) + "@example.com",
	}
	for _, s := range bad {
		assert.False(t, Email(s), s)
	}
}

func TestUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		ok     bool
		reason string
	}{
		{"bob", true, ""},
		{"player_01", true, ""},
		{"ab", false, "username must be at least 3 characters long"},
		{strings.Repeat("u", 51), false, "username cannot exceed 50 characters"},
		{"bad-name", false, "username can only contain letters, numbers, and underscores"},
		{"white space", false, "username can only contain letters, numbers, and underscores"},
	}
	for _, c := range cases {
		ok, reason := Username(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.reason, reason, c.in)
	}
}

func TestPasswordStrength_FirstFailureReported(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		reason string
	}{
		{"Sh0rt!", "password must be at least 8 characters long"},
		{"lowercase1!", "password must contain at least one uppercase letter"},
		{"UPPERCASE1!", "password must contain at least one lowercase letter"},
		{"NoDigits!!", "password must contain at least one number"},
		{"NoSpecial1", "password must contain at least one special character"},
		{"Passw0rd!", ""},
		{`Quote"d12a`, ""},
	}
	for _, c := range cases {
		ok, reason := PasswordStrength(c.in)
		assert.Equal(t, c.reason == "", ok, c.in)
		assert.Equal(t, c.reason, reason, c.in)
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "line one\n\tline two", CleanText("  line one\r\n\tline two\x00\x1b "))
	assert.Equal(t, "hidden", CleanText("hid\u200bden\u202e"))
	assert.Equal(t, "ok", CleanText("o\xffk"))
	assert.Equal(t, "", CleanText("\x07\x08 "))
}

func TestDescription(t *testing.T) {
	t.Parallel()

	got, ok, _ := Description(" find the exit\x00 ")
	assert.True(t, ok)
	assert.Equal(t, "find the exit", got)

	_, ok, _ = Description(strings.Repeat("é", MaxDescriptionLen))
	assert.True(t, ok, "the limit counts characters, not bytes")

	_, ok, reason := Description(strings.Repeat("a", MaxDescriptionLen+1))
	assert.False(t, ok)
	assert.Equal(t, "description cannot exceed 1000 characters", reason)
}
