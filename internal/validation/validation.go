package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrQueryEmpty is returned when neither text nor audio is present in a request.
var ErrQueryEmpty = errors.New("text query or audio is required")

// ErrQueryTooShort is returned when the query length is below the minimum.
var ErrQueryTooShort = errors.New("query too short")

// ErrQueryTooLong is returned when the query length exceeds the maximum.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is returned when the query contains disallowed characters.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

// ErrAudioTooLarge is returned when the decoded audio exceeds the size limit.
var ErrAudioTooLarge = errors.New("audio payload too large")

// ErrAudioInvalid is returned when the audio field is not valid base64.
var ErrAudioInvalid = errors.New("audio payload is not valid base64")

// ErrCoordinatesInvalid is returned when latitude or longitude is out of range.
var ErrCoordinatesInvalid = errors.New("coordinates out of range")

// ErrCoordinatesIncomplete is returned when only one of latitude/longitude is set.
var ErrCoordinatesIncomplete = errors.New("latitude and longitude must be provided together")

// ErrLanguageUnsupported is returned for language codes other than hi and en.
var ErrLanguageUnsupported = errors.New("unsupported language")

// ValidateQueryText trims the input, enforces length bounds (minLen, maxLen in
// runes), and restricts to allowed characters: letters (Unicode, including
// Devanagari), digits, space, and common punctuation. Returns the trimmed
// string or an error suitable for a failed-response payload.
func ValidateQueryText(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrQueryEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrQueryTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

// isAllowedQueryRune returns true for letters (Unicode), combining marks,
// digits, spaces, and the punctuation spoken queries produce. Devanagari
// matras and nasalization signs are category Mn, not letters, so IsMark is
// required for Hindi text to pass.
func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
		return true
	}
	switch r {
	case ',', '.', '?', '!', '-', '\'', '"', ':', ';', '(', ')', '/', '%', '&', '+', '।', '॥':
		return true
	}
	return false
}

// ValidateCoordinates checks that latitude and longitude are either both nil
// or both set and within WGS84 ranges.
func ValidateCoordinates(lat, lon *float64) error {
	if lat == nil && lon == nil {
		return nil
	}
	if lat == nil || lon == nil {
		return ErrCoordinatesIncomplete
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return ErrCoordinatesInvalid
	}
	return nil
}

// ValidateAudioSize checks decoded audio length against the configured limit.
// A limit of 0 disables the check.
func ValidateAudioSize(decodedLen int, maxBytes int64) error {
	if maxBytes > 0 && int64(decodedLen) > maxBytes {
		return ErrAudioTooLarge
	}
	return nil
}

// ValidateLanguage checks the language code against the supported set.
// Empty defaults to "hi". Returns the normalized code.
func ValidateLanguage(lang string) (string, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	switch lang {
	case "":
		return "hi", nil
	case "hi", "en":
		return lang, nil
	default:
		return "", ErrLanguageUnsupported
	}
}
