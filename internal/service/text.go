package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainText = bluemonday.StrictPolicy()

// cleanText strips markup from free text entered by staff.
func cleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(value)))
}

// normalizeIdentifier turns a raw barcode read into a student ID number.
// Scanners append a line terminator and Code 39 wraps the payload in '*'.
func normalizeIdentifier(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "*")
	value = strings.TrimSuffix(value, "*")
	return strings.TrimSpace(value)
}

// normalizeNumber canonicalises equipment numbers and kit codes.
func normalizeNumber(raw string) string {
	return strings.ToUpper(normalizeIdentifier(raw))
}

// uniqueNumbers normalises numbers, dropping blanks and repeats while keeping order.
func uniqueNumbers(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	result := make([]string, 0, len(raw))
	for _, value := range raw {
		number := normalizeNumber(value)
		if number == "" {
			continue
		}
		if _, ok := seen[number]; ok {
			continue
		}
		seen[number] = struct{}{}
		result = append(result, number)
	}
	return result
}
