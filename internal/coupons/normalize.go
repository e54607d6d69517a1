package coupons

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCode canonicalizes a coupon code for storage and lookup.
// Casers keep state, so one is built per call.
func NormalizeCode(code string) string {
	return cases.Upper(language.Und).String(norm.NFKC.String(strings.TrimSpace(code)))
}

// NormalizeEmail canonicalizes an email for allow-list matching.
func NormalizeEmail(email string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(email)))
}
