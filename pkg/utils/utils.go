package utils

import (
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateShortID generates a short ID (first char alphabetic, rest alphanumeric)
func GenerateShortID() string {
	firstChar, _ := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz", 1)
	rest, _ := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 19)
	return firstChar + rest
}

// KebabCase converts an identifier to lowercase dash-separated form,
// e.g. "pdf_worker" -> "pdf-worker".
func KebabCase(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ShellQuote single-quotes s for safe interpolation into a POSIX shell
// command line. Strings without shell metacharacters pass through as-is.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$&|;<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// PtrValue returns the value of a pointer or a default value if nil
func PtrValue[T any](ptr *T, defaultValue T) T {
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

// Ptr returns a pointer to the given value
func Ptr[T any](v T) *T {
	return &v
}
