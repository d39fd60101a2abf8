package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

var (
	amcRe  = regexp.MustCompile(`([A-Z][A-Za-z\s]+(?:Mutual Fund|Asset Management|AMC))`)
	isinRe = regexp.MustCompile(`^IN[A-Z0-9]{10}$`)
)

var navDateLayouts = []string{"02-Jan-2006", "02-01-2006", "02/01/2006"}

// pdfStrategy is one way of turning a decoded document into holdings. CAMS
// layouts vary by generator, so strategies are tried in order until one
// yields a non-empty result; adding a vendor is adding a strategy.
type pdfStrategy interface {
	name() string
	parse(r *pdf.Reader) ([]HoldingRecord, error)
}

func (p *Parser) parsePDF(data []byte, password string) ([]HoldingRecord, error) {
	attempts := 0
	r, err := pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), func() string {
		attempts++
		if attempts == 1 {
			return password
		}
		return ""
	})
	if err != nil {
		return nil, classifyOpenError(err, password)
	}

	strategies := []pdfStrategy{
		&headerTableStrategy{p: p, gap: 6, retryGap: 12},
		&positionalStrategy{p: p, gap: 18},
	}
	for _, s := range strategies {
		records, err := s.parse(r)
		if err != nil {
			p.log.Warnf("statement: pdf strategy %s failed: %v", s.name(), err)
			continue
		}
		if len(records) > 0 {
			p.log.Infof("statement: pdf strategy %s extracted %d holdings", s.name(), len(records))
			return records, nil
		}
	}
	return nil, ErrUnparseable
}

// classifyOpenError maps the pdf library's open failure onto the typed
// errors callers branch on. The library reports decryption problems only
// through error text, so the substring check stays confined here.
func classifyOpenError(err error, password string) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
		if password == "" {
			return ErrPasswordRequired
		}
		return ErrPasswordIncorrect
	}
	return fmt.Errorf("open pdf: %w", err)
}

// rowCells clusters a row's positioned text runs into cells. A new cell
// starts wherever the horizontal gap to the previous run exceeds gap.
func rowCells(row *pdf.Row, gap float64) []string {
	texts := make([]pdf.Text, len(row.Content))
	copy(texts, row.Content)
	sort.Slice(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

	var (
		cells []string
		cur   strings.Builder
		prevX float64
		prevW float64
	)
	for i, t := range texts {
		if i > 0 && t.X-(prevX+prevW) > gap {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(t.S)
		prevX, prevW = t.X, t.W
	}
	if cur.Len() > 0 {
		cells = append(cells, strings.TrimSpace(cur.String()))
	}
	return cells
}

func pageCellRows(page pdf.Page, gap float64) ([][]string, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := rowCells(row, gap)
		if len(cells) > 0 {
			out = append(out, cells)
		}
	}
	return out, nil
}

// headerTableStrategy detects each page's column header by keyword and maps
// data rows through it, the same way the spreadsheet path does.
type headerTableStrategy struct {
	p        *Parser
	gap      float64
	retryGap float64
}

func (s *headerTableStrategy) name() string { return "header-table" }

func (s *headerTableStrategy) parse(r *pdf.Reader) ([]HoldingRecord, error) {
	navDate := time.Now().UTC().Truncate(24 * time.Hour)
	var (
		records      []HoldingRecord
		currentFolio string
		currentAMC   string
	)
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		cellRows, err := pageCellRows(page, s.gap)
		if err != nil {
			s.p.log.Warnf("statement: pdf page %d text extraction failed: %v", i, err)
			continue
		}
		extracted := s.parsePage(cellRows, navDate, &currentFolio, &currentAMC)
		if len(extracted) == 0 {
			// Some CAMS generators space glyphs so widely that tight
			// clustering shreds every cell. Retry the page looser.
			if retry, err := pageCellRows(page, s.retryGap); err == nil {
				extracted = s.parsePage(retry, navDate, &currentFolio, &currentAMC)
			}
		}
		records = append(records, extracted...)
	}
	return records, nil
}

func (s *headerTableStrategy) parsePage(cellRows [][]string, navDate time.Time, currentFolio, currentAMC *string) []HoldingRecord {
	pageText := make([]string, 0, len(cellRows))
	for _, row := range cellRows {
		pageText = append(pageText, strings.Join(row, " "))
	}
	if m := amcRe.FindString(strings.Join(pageText, "\n")); m != "" {
		*currentAMC = strings.TrimSpace(m)
	}

	cols := newColumnMap()
	var records []HoldingRecord
	for _, row := range cellRows {
		if isHeaderRow(row) {
			if m := mapColumns(row); m.usable() {
				cols = m
			}
			continue
		}
		if !cols.usable() {
			continue
		}

		if f := cellAt(row, cols.folio); f != "" {
			if folio, ok := ExtractFolioNumber(f); ok {
				*currentFolio = folio
			}
		}
		schemeName := cellAt(row, cols.scheme)
		if len(schemeName) < 5 {
			continue
		}
		units := CleanNumber(cellAt(row, cols.units))
		nav := CleanNumber(cellAt(row, cols.nav))
		cost := CleanNumber(cellAt(row, cols.cost))
		value := CleanNumber(cellAt(row, cols.value))

		rec, ok := buildRecord(*currentFolio, *currentAMC, schemeName, units, nav, cost, value, navDate)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// positionalStrategy is the fallback for documents whose header rows never
// survive extraction. The consolidated statement has a fixed column order:
// folio, ISIN, scheme name, cost value, unit balance, NAV date, NAV, market
// value, optional registrar. Rows are accepted on shape alone and deduped,
// because the same holding reappears on continuation pages.
type positionalStrategy struct {
	p   *Parser
	gap float64
}

func (s *positionalStrategy) name() string { return "positional" }

func (s *positionalStrategy) parse(r *pdf.Reader) ([]HoldingRecord, error) {
	fallback := time.Now().UTC().Truncate(24 * time.Hour)
	seen := map[string]bool{}
	var records []HoldingRecord
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		cellRows, err := pageCellRows(page, s.gap)
		if err != nil {
			s.p.log.Warnf("statement: pdf page %d text extraction failed: %v", i, err)
			continue
		}
		for _, row := range cellRows {
			rec, ok := parsePositionalRow(row, fallback)
			if !ok {
				continue
			}
			key := rec.FolioNumber + "|" + cellAt(row, 1) + "|" + rec.SchemeName + "|" + rec.UnitBalance.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			records = append(records, rec)
		}
	}
	return records, nil
}

func parsePositionalRow(row []string, fallbackDate time.Time) (HoldingRecord, bool) {
	if len(row) < 8 {
		return HoldingRecord{}, false
	}
	folio, ok := ExtractFolioNumber(row[0])
	if !ok {
		return HoldingRecord{}, false
	}
	if !isinRe.MatchString(strings.TrimSpace(row[1])) {
		return HoldingRecord{}, false
	}
	schemeName := strings.TrimSpace(row[2])
	if len(schemeName) < 5 {
		return HoldingRecord{}, false
	}

	cost := CleanNumber(row[3])
	units := CleanNumber(row[4])
	navDate := parseNAVDate(row[5], fallbackDate)
	nav := CleanNumber(row[6])
	value := CleanNumber(row[7])

	rec, ok := buildRecord(folio, "", schemeName, units, nav, cost, value, navDate)
	if !ok {
		return HoldingRecord{}, false
	}
	return rec, true
}

func parseNAVDate(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range navDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return fallback
}
