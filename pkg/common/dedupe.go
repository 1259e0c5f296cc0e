package common

import "strings"

// NormalizeName standardizes an entity name for identity comparisons:
// whitespace runs collapse to one space, line breaks become spaces, ends are
// trimmed.
func NormalizeName(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// DedupeKey builds the (lowercased name, type) identity key used to decide
// whether two entity candidates denote the same real-world thing.
func DedupeKey(name string, typ EntityType) string {
	return strings.ToLower(NormalizeName(name)) + "|" + string(typ)
}
