package entity

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var accessorPrefixes = []string{"Get", "get", "Is", "is"}

var labelPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NormalizeAccessor derives the persisted key for an accessor-style name.
// A leading Get/get/Is/is is stripped only when it is followed by an
// upper-case rune, then the remainder is lower-cased:
//
//	GetFirstName -> firstname
//	IsActive     -> active
//	Issue        -> issue
//	Age          -> age
func NormalizeAccessor(accessor string) string {
	name := strings.TrimSpace(accessor)
	for _, prefix := range accessorPrefixes {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || rest == "" {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(rest); unicode.IsUpper(r) {
			name = rest
			break
		}
	}
	return strings.ToLower(name)
}

// deriveLabel returns the lower-cased explicit label, falling back to the
// lower-cased type name.
func deriveLabel(explicit, typeName string) (string, error) {
	label := strings.ToLower(strings.TrimSpace(explicit))
	if label == "" {
		label = strings.ToLower(typeName)
	}
	if label == "" {
		return "", fmt.Errorf("anonymous type without explicit label")
	}
	if !labelPattern.MatchString(label) {
		return "", fmt.Errorf("label %q is not a valid node label", label)
	}
	return label, nil
}
