package parser

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"Consolidated Account Statement"},
		{"As on 28-Aug-2026"},
		{"Folio No", "Scheme Name", "AMC", "Unit Balance", "NAV", "Cost Value"},
		{"123456789012", "HDFC Flexi Cap Fund - Direct Plan - Growth", "HDFC Mutual Fund", "100.5", "45.25", "4000"},
		{"", "HDFC Mid-Cap Opportunities Fund - Growth", "", "50", "120", "5500"},
		{"987654321098", "ICICI Prudential Bluechip Fund - Growth", "ICICI Prudential Mutual Fund", "25", "80", "1800"},
	})

	p := New(logrus.New())
	records, err := p.Parse(data, ".xlsx", "")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "123456789012", records[0].FolioNumber)
	assert.Equal(t, "123456789012", records[1].FolioNumber)
	assert.Equal(t, "HDFC Mutual Fund", records[1].AMCName)
	assert.Equal(t, "987654321098", records[2].FolioNumber)
	assert.Equal(t, "ICICI Prudential Mutual Fund", records[2].AMCName)
}

func TestParseXLSX_NoHoldingsTable(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"Transaction Export"},
		{"Date", "Amount", "Description"},
		{"01-01-2026", "100", "SIP"},
	})

	p := New(logrus.New())
	_, err := p.Parse(data, ".xlsx", "")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseXLSX_Corrupt(t *testing.T) {
	p := New(logrus.New())
	_, err := p.Parse([]byte("not a zip archive"), ".xlsx", "")
	assert.Error(t, err)
}
