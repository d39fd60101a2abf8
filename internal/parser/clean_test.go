package parser

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCleanNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234.50", "1234.5"},
		{"₹12,000", "12000"},
		{"Rs. 1,23,456.78", "123456.78"},
		{"(1,234.50)", "-1234.5"},
		{"-", "0"},
		{"", "0"},
		{"N/A", "0"},
		{"Total", "0"},
		{"  45.25  ", "45.25"},
	}
	for _, tc := range cases {
		got := CleanNumber(tc.in)
		want, _ := decimal.NewFromString(tc.want)
		assert.True(t, got.Equal(want), "CleanNumber(%q) = %s, want %s", tc.in, got, want)
	}
}

func TestExtractFolioNumber(t *testing.T) {
	folio, ok := ExtractFolioNumber("Folio: 123456789012 ABC")
	assert.True(t, ok)
	assert.Equal(t, "123456789012", folio)

	// 7 digits is too short, 13 is too long.
	_, ok = ExtractFolioNumber("1234567")
	assert.False(t, ok)
	_, ok = ExtractFolioNumber("1234567890123")
	assert.False(t, ok)

	// First qualifying run wins.
	folio, ok = ExtractFolioNumber("91012345678 / 88887777666")
	assert.True(t, ok)
	assert.Equal(t, "91012345678", folio)
}

func TestCleanSchemeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HDFC Flexi Cap Fund - Direct Plan - Growth", "HDFC Flexi Cap Fund"},
		{"ICICI   Prudential  Bluechip Fund - Growth", "ICICI Prudential Bluechip Fund"},
		{"Axis Small Cap Fund - IDCW", "Axis Small Cap Fund"},
		{"SBI Equity Hybrid Fund Direct Growth", "SBI Equity Hybrid Fund"},
		{"Kotak Emerging Equity Fund", "Kotak Emerging Equity Fund"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanSchemeName(tc.in), "input %q", tc.in)
	}
}
