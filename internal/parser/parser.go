package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// HoldingRecord is one normalized statement line. Scheme identity is
// resolved after parsing, in a separate pass, so records carry only the
// free-text names the statement printed.
type HoldingRecord struct {
	FolioNumber    string
	SchemeName     string
	AMCName        string
	UnitBalance    decimal.Decimal
	AvgCostPerUnit decimal.Decimal
	CostValue      decimal.Decimal
	CurrentNAV     decimal.Decimal
	NAVDate        time.Time
}

// UnknownFolio marks lines whose folio number could not be located.
const UnknownFolio = "UNKNOWN"

var (
	// ErrPasswordRequired means the PDF is encrypted and no password was
	// supplied. CAMS protects statements with the investor's PAN in
	// lowercase, which is worth telling the user.
	ErrPasswordRequired = errors.New("statement is password-protected; CAMS PDFs usually use your PAN in lowercase")

	// ErrPasswordIncorrect means a password was supplied but rejected.
	ErrPasswordIncorrect = errors.New("incorrect statement password; CAMS PDFs usually use your PAN in lowercase")

	// ErrUnparseable means the file opened fine but no strategy found a
	// recognizable holdings layout.
	ErrUnparseable = errors.New("no recognizable holdings layout in statement")
)

// Parser extracts holding records from uploaded CAMS statements.
type Parser struct {
	log *logrus.Logger
}

func New(log *logrus.Logger) *Parser {
	return &Parser{log: log}
}

// Parse dispatches on file extension. ext must be lowercase and include the
// dot. The password is only meaningful for PDFs.
func (p *Parser) Parse(data []byte, ext, password string) ([]HoldingRecord, error) {
	switch ext {
	case ".xlsx":
		return p.parseXLSX(data)
	case ".xls":
		return p.parseXLS(data)
	case ".pdf":
		return p.parsePDF(data, password)
	default:
		return nil, fmt.Errorf("unsupported statement type %q", ext)
	}
}

// columnMap holds the index of each semantic column, -1 when absent.
type columnMap struct {
	folio, scheme, amc, units, nav, cost, value int
}

func newColumnMap() columnMap {
	return columnMap{folio: -1, scheme: -1, amc: -1, units: -1, nav: -1, cost: -1, value: -1}
}

func (m columnMap) usable() bool { return m.scheme >= 0 }

// mapColumns matches header cells to semantic fields by keyword. Column
// order varies across statement vendors, so position is never assumed.
func mapColumns(headers []string) columnMap {
	m := newColumnMap()
	for i, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		if lower == "" {
			continue
		}
		switch {
		case strings.Contains(lower, "folio"):
			m.folio = i
		case strings.Contains(lower, "scheme") || strings.Contains(lower, "fund"):
			m.scheme = i
		case strings.Contains(lower, "amc") || strings.Contains(lower, "house"):
			m.amc = i
		case strings.Contains(lower, "unit") || strings.Contains(lower, "balance"):
			m.units = i
		case strings.Contains(lower, "nav") && !strings.Contains(lower, "date"):
			m.nav = i
		case strings.Contains(lower, "cost") || strings.Contains(lower, "invested"):
			m.cost = i
		case strings.Contains(lower, "value") || strings.Contains(lower, "market"):
			m.value = i
		}
	}
	return m
}

// isHeaderRow reports whether cells look like the statement's column header.
// The front matter above it (investor address, disclaimers) never contains
// both tokens.
func isHeaderRow(cells []string) bool {
	joined := strings.ToLower(strings.Join(cells, " "))
	return strings.Contains(joined, "folio") && strings.Contains(joined, "scheme")
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// buildRecord applies the row acceptance rule and back-fills missing
// figures. A row is a holding only when units are positive and at least one
// of NAV, cost or market value is. Missing cost is assumed to carry zero
// embedded profit rather than inventing a number.
func buildRecord(folio, amc, schemeName string, units, nav, cost, value decimal.Decimal, navDate time.Time) (HoldingRecord, bool) {
	if units.Sign() <= 0 {
		return HoldingRecord{}, false
	}
	if nav.Sign() <= 0 && cost.Sign() <= 0 && value.Sign() <= 0 {
		return HoldingRecord{}, false
	}
	if nav.Sign() <= 0 && value.Sign() > 0 {
		nav = value.Div(units)
	}
	if cost.Sign() <= 0 {
		if value.Sign() > 0 {
			cost = value
		} else {
			cost = nav.Mul(units)
		}
	}
	avgCost := cost.Div(units)
	if folio == "" {
		folio = UnknownFolio
	}
	return HoldingRecord{
		FolioNumber:    folio,
		SchemeName:     schemeName,
		AMCName:        amc,
		UnitBalance:    units,
		AvgCostPerUnit: avgCost,
		CostValue:      cost,
		CurrentNAV:     nav,
		NAVDate:        navDate,
	}, true
}

// parseRows runs the header-mapped extraction over a grid of cells. Folio
// and AMC are carried forward across rows that do not repeat them, the way
// CAMS groups lines under a folio header.
func (p *Parser) parseRows(rows [][]string) ([]HoldingRecord, error) {
	headerIdx := -1
	for i, row := range rows {
		if isHeaderRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrUnparseable
	}

	cols := mapColumns(rows[headerIdx])
	if !cols.usable() {
		return nil, ErrUnparseable
	}

	navDate := time.Now().UTC().Truncate(24 * time.Hour)
	var (
		records      []HoldingRecord
		currentFolio string
		currentAMC   string
	)
	for _, row := range rows[headerIdx+1:] {
		if f := cellAt(row, cols.folio); f != "" {
			if folio, ok := ExtractFolioNumber(f); ok {
				currentFolio = folio
			}
		}
		if a := cellAt(row, cols.amc); a != "" {
			currentAMC = a
		}

		schemeName := cellAt(row, cols.scheme)
		if len(schemeName) < 5 {
			continue
		}

		units := CleanNumber(cellAt(row, cols.units))
		nav := CleanNumber(cellAt(row, cols.nav))
		cost := CleanNumber(cellAt(row, cols.cost))
		value := CleanNumber(cellAt(row, cols.value))

		rec, ok := buildRecord(currentFolio, currentAMC, schemeName, units, nav, cost, value, navDate)
		if !ok {
			continue
		}
		records = append(records, rec)
		p.log.Debugf("statement: extracted %s (%s units)", rec.SchemeName, rec.UnitBalance)
	}
	return records, nil
}
