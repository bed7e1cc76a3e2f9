package domain

import "strings"

// AnyOption is the selector value that disables a category or diet filter.
const AnyOption = "All"

// Filter holds the browsing criteria of a customer. It has no state beyond the
// current selection.
type Filter struct {
	Query    string
	Category string
	Diet     string
	MaxKm    float64
}

// Matches reports whether d satisfies every criterion of the filter.
func (f Filter) Matches(d *Deal) bool {
	if !isAny(f.Category) && d.Category != f.Category {
		return false
	}
	if !isAny(f.Diet) && !containsString(d.Diets(), f.Diet) {
		return false
	}
	if f.MaxKm > 0 && d.DistanceKm > f.MaxKm {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		return strings.Contains(d.SearchText(), strings.ToLower(q))
	}
	return true
}

func isAny(selector string) bool {
	return selector == "" || selector == AnyOption
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
