package model

import "strings"

// Expense categories offered to the user and to classifiers.
const (
	CategoryFood          = "Food"
	CategoryTravel        = "Travel"
	CategoryShopping      = "Shopping"
	CategoryBills         = "Bills"
	CategoryEntertainment = "Entertainment"
	CategoryHealth        = "Health"
	CategoryMisc          = "Misc"
)

// Categories lists every known category in display order.
var Categories = []string{
	CategoryFood,
	CategoryTravel,
	CategoryShopping,
	CategoryBills,
	CategoryEntertainment,
	CategoryHealth,
	CategoryMisc,
}

// NormalizeCategory maps a free-form label onto a known category name.
// It returns false when the label matches nothing. "Other" is accepted as Misc.
func NormalizeCategory(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if strings.EqualFold(label, "other") {
		return CategoryMisc, true
	}
	for _, c := range Categories {
		if strings.EqualFold(c, label) {
			return c, true
		}
	}
	return "", false
}
