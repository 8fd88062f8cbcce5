// Package locale resolves the language used for built-in text.
package locale

import (
	"strings"

	"golang.org/x/text/language"
)

// Locale identifies one supported language.
type Locale int

const (
	// Chinese is Simplified Chinese, the default.
	Chinese Locale = iota
	// English is US English.
	English
)

var supported = []language.Tag{
	language.SimplifiedChinese,
	language.AmericanEnglish,
}

var matcher = language.NewMatcher(supported)

// Parse resolves a BCP 47 string (or an Accept-Language list) to the closest
// supported locale. Unknown or empty input resolves to Chinese.
func Parse(raw string) Locale {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Chinese
	}
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return Chinese
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return Chinese
	}
	return Locale(index)
}

// Tag returns the canonical language tag.
func (l Locale) Tag() language.Tag {
	if l < 0 || int(l) >= len(supported) {
		return supported[Chinese]
	}
	return supported[l]
}

// String returns the tag in BCP 47 form.
func (l Locale) String() string {
	return l.Tag().String()
}
