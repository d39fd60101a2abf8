package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var folioRe = regexp.MustCompile(`\b\d{8,12}\b`)

// CleanNumber converts a locale-formatted amount string to a decimal.
// It tolerates rupee symbols, thousands separators and accounting-style
// parenthesized negatives. Anything unparseable comes back as zero; this
// function never fails because statements are full of junk cells.
func CleanNumber(raw string) decimal.Decimal {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "₹", "")
	cleaned = strings.ReplaceAll(cleaned, "Rs.", "")
	cleaned = strings.ReplaceAll(cleaned, "Rs", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero
	}
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + cleaned[1:len(cleaned)-1]
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ExtractFolioNumber returns the first run of 8-12 consecutive digits in
// text. Statements mix folio numbers with other numeric content; the digit
// run length is the only reliable disambiguator.
func ExtractFolioNumber(text string) (string, bool) {
	m := folioRe.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

// Plan-variant suffixes that CAMS renders inconsistently across statements.
var schemeSuffixes = []string{
	" - Growth",
	" - Direct Plan",
	" - Regular Plan",
	" - IDCW",
	" - Dividend",
	"Growth Option",
	"Direct Growth",
	"Regular Growth",
}

// CleanSchemeName collapses internal whitespace and strips known plan
// suffixes so that differently-rendered names of the same scheme collapse to
// one string for matching. Best effort, not canonical.
func CleanSchemeName(name string) string {
	cleaned := strings.Join(strings.Fields(name), " ")
	for _, s := range schemeSuffixes {
		cleaned = strings.ReplaceAll(cleaned, s, "")
	}
	return strings.TrimSpace(cleaned)
}
