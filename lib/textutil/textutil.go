package textutil

import "strings"

// NotAvailable stands in for a field that could not be read off a page.
const NotAvailable = "N/A"

// EnsurePercent appends a "%" suffix to a value displayed as a percentage.
// Empty values normalize to NotAvailable and NotAvailable passes through
// untouched, so unreadable fields never grow a percent sign.
func EnsurePercent(s string) string {
	s = strings.Trim(s, " \t\n")
	if s == "" || s == NotAvailable {
		return NotAvailable
	}
	if strings.HasSuffix(s, "%") {
		return s
	}
	return s + "%"
}
