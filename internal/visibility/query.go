package visibility

import (
	"net/url"
	"strings"
)

// All is the sentinel value of a list filter meaning "no restriction".
const All = "all"

// Query holds the user-chosen list filters. Empty or "all" fields match anything.
type Query struct {
	Search        string
	EquipmentType string
	BaseID        string
	Status        string
	Type          string
	Priority      string
	Tab           string
}

// QueryFromValues reads the standard list filters from URL query parameters.
func QueryFromValues(v url.Values) Query {
	return Query{
		Search:        strings.TrimSpace(v.Get("search")),
		EquipmentType: v.Get("equipmentType"),
		BaseID:        v.Get("baseId"),
		Status:        v.Get("status"),
		Type:          v.Get("type"),
		Priority:      v.Get("priority"),
		Tab:           v.Get("tab"),
	}
}

// MatchField reports whether value satisfies a filter that may be empty or "all".
func MatchField(filter, value string) bool {
	return filter == "" || filter == All || filter == value
}

// MatchBases reports whether any of bases satisfies the base filter.
func MatchBases(filter string, bases ...string) bool {
	if filter == "" || filter == All {
		return true
	}
	for _, b := range bases {
		if b == filter {
			return true
		}
	}
	return false
}

// MatchSearch performs a case-insensitive substring match across fields.
func MatchSearch(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}
