package util

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

var unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

const (
	maxOriginalNameRunes = 255
	fallbackName         = "upload"
)

// SanitizeOriginalName cleans a client supplied file name for display and
// storage in the documents table. It never fails: a name that is empty after
// cleaning becomes "upload" with the original extension kept when possible.
func SanitizeOriginalName(name string) string {
	base := strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	base = path.Base(base)
	if base == "." || base == "/" {
		base = ""
	}

	builder := strings.Builder{}
	builder.Grow(len(base))
	for _, char := range base {
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}
		builder.WriteRune(char)
	}

	cleaned := strings.TrimSpace(unsafeNameChars.ReplaceAllString(builder.String(), "_"))
	cleaned = strings.TrimLeft(cleaned, ".")
	if strings.TrimSpace(cleaned) == "" {
		return fallbackName
	}
	if strings.HasPrefix(cleaned, "_") && strings.Trim(cleaned, "_.") == "" {
		return fallbackName
	}

	runes := []rune(cleaned)
	if len(runes) > maxOriginalNameRunes {
		ext := []rune(path.Ext(cleaned))
		if len(ext) >= maxOriginalNameRunes {
			ext = nil
		}
		runes = append(runes[:maxOriginalNameRunes-len(ext)], ext...)
	}

	return string(runes)
}

// isInvisibleUnicode reports zero-width and formatting characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\u200E', '\u200F',
		'\u2060', '\u2061', '\u2062', '\u2063', '\u2064',
		'\uFEFF', '\uFFF9', '\uFFFA', '\uFFFB':
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
