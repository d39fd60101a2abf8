package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyOpenError(t *testing.T) {
	assert.ErrorIs(t, classifyOpenError(errors.New("encrypted PDF: invalid password"), ""), ErrPasswordRequired)
	assert.ErrorIs(t, classifyOpenError(errors.New("encrypted PDF: invalid password"), "abcde1234f"), ErrPasswordIncorrect)

	err := classifyOpenError(errors.New("malformed PDF: xref table truncated"), "")
	assert.NotErrorIs(t, err, ErrPasswordRequired)
	assert.NotErrorIs(t, err, ErrPasswordIncorrect)
	assert.Error(t, err)
}

func TestRowCells(t *testing.T) {
	row := &pdf.Row{Content: pdf.TextHorizontal{
		// Two runs 2pt apart form one cell; the third run sits 30pt away.
		{S: "HDFC Flexi", X: 10, W: 40},
		{S: " Cap Fund", X: 52, W: 36},
		{S: "123456789012", X: 120, W: 50},
	}}
	cells := rowCells(row, 6)
	require.Len(t, cells, 2)
	assert.Equal(t, "HDFC Flexi Cap Fund", cells[0])
	assert.Equal(t, "123456789012", cells[1])

	// Unsorted input is ordered by X before clustering.
	row = &pdf.Row{Content: pdf.TextHorizontal{
		{S: "two", X: 100, W: 20},
		{S: "one", X: 10, W: 20},
	}}
	cells = rowCells(row, 6)
	require.Len(t, cells, 2)
	assert.Equal(t, "one", cells[0])
	assert.Equal(t, "two", cells[1])

	// A looser gap merges everything into one cell.
	cells = rowCells(row, 200)
	require.Len(t, cells, 1)
}

func TestParsePositionalRow(t *testing.T) {
	fallback := time.Now().UTC().Truncate(24 * time.Hour)
	row := []string{"123456789012", "INF179K01158", "HDFC Flexi Cap Fund - Direct Plan - Growth", "4,000.00", "100.500", "27-Aug-2026", "45.25", "4,547.63", "CAMS"}

	rec, ok := parsePositionalRow(row, fallback)
	require.True(t, ok)
	assert.Equal(t, "123456789012", rec.FolioNumber)
	assert.True(t, rec.UnitBalance.Equal(decimal.NewFromFloat(100.5)))
	assert.True(t, rec.CurrentNAV.Equal(decimal.NewFromFloat(45.25)))
	assert.Equal(t, 2026, rec.NAVDate.Year())
	assert.Equal(t, time.August, rec.NAVDate.Month())

	// Not an ISIN in column 1.
	bad := append([]string{}, row...)
	bad[1] = "REGISTRAR"
	_, ok = parsePositionalRow(bad, fallback)
	assert.False(t, ok)

	// No folio-shaped digits.
	bad = append([]string{}, row...)
	bad[0] = "Mr Investor"
	_, ok = parsePositionalRow(bad, fallback)
	assert.False(t, ok)

	// Too few columns for the consolidated layout.
	_, ok = parsePositionalRow(row[:5], fallback)
	assert.False(t, ok)
}

func TestParseNAVDate(t *testing.T) {
	fallback := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	got := parseNAVDate("27-Aug-2026", fallback)
	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), got)

	got = parseNAVDate("27-08-2026", fallback)
	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), got)

	got = parseNAVDate("not a date", fallback)
	assert.Equal(t, fallback, got)
}

func TestParsePDF_NotAPDF(t *testing.T) {
	p := New(logrus.New())
	_, err := p.Parse([]byte("plain text, not a pdf"), ".pdf", "")
	assert.Error(t, err)
}
