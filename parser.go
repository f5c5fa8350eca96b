/*
Copyright 2024 Settld Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package settld

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/settld-io/settld/model"
)

// Fatal parse errors. Any of these makes the whole run meaningless; no
// Settlement is created when they occur.
var (
	ErrNotText        = errors.New("settlement file is not decodable as text")
	ErrNoAmountColumn = errors.New("no amount column found in header row")
	ErrNoDataRows     = errors.New("no data rows in settlement file")
)

// Column roles the parser resolves from the header row.
const (
	colAmount    = "amount"
	colReference = "reference"
	colDate      = "date"
	colFee       = "fee"
	colCurrency  = "currency"
)

// columnSynonyms maps a column role to header substrings that select it.
// Matching is case-insensitive.
var columnSynonyms = map[string][]string{
	colAmount:    {"amount", "total", "gross", "value"},
	colReference: {"reference", "ref", "transaction", "txn", "order", "payment"},
	colDate:      {"date", "settled", "posted", "paid_at", "time"},
	colFee:       {"fee", "charge", "commission", "mdr"},
	colCurrency:  {"currency", "ccy", "cur"},
}

// roleResolutionOrder controls which role claims an ambiguous header first.
// A "transaction_date" header must resolve to date, not reference, and a
// "fee_amount" header to fee, not amount.
var roleResolutionOrder = []string{colFee, colDate, colCurrency, colAmount, colReference}

// dateLayouts are tried in order when parsing a date cell.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// minorUnitExponent is fixed at 2. Matching operates within one currency per
// run and tolerance is already expressed in minor units.
const minorUnitExponent = 2

// ParseOptions tunes header and cell interpretation. The zero value
// auto-detects the delimiter and leaves currency empty.
type ParseOptions struct {
	// Delimiter overrides auto-detection when non-zero.
	Delimiter rune
	// DefaultCurrency fills records when the file carries no currency column.
	DefaultCurrency string
	// ColumnHints maps a column role (amount, reference, date, fee, currency)
	// to an exact header name, overriding synonym resolution for that role.
	ColumnHints map[string]string
}

// ParseSettlementFile turns raw delimited-text bytes into normalized
// settlement records. It is a pure transform: parsing the same bytes twice
// yields identical output. Individual bad rows degrade to RowError entries;
// only an undecodable file, a missing amount column, or a file with no data
// lines fail fatally.
func ParseSettlementFile(raw []byte, opts ParseOptions) ([]model.SettlementRecord, []model.RowError, error) {
	if !utf8.Valid(raw) || bytes.ContainsRune(raw, 0x00) {
		return nil, nil, ErrNotText
	}

	header, dataLines := splitLines(raw)
	if header == "" {
		return nil, nil, ErrNoDataRows
	}

	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = detectDelimiter(header)
	}

	headerCells := splitCells(header, delimiter)
	columns, err := resolveColumns(headerCells, opts.ColumnHints)
	if err != nil {
		return nil, nil, err
	}

	if len(dataLines) == 0 {
		return nil, nil, ErrNoDataRows
	}

	var records []model.SettlementRecord
	var rowErrors []model.RowError
	for i, line := range dataLines {
		row := i + 1 // 1-based for operator-facing error reporting
		record, rowErr := parseRow(row, line, delimiter, len(headerCells), columns, opts.DefaultCurrency)
		if rowErr != nil {
			rowErrors = append(rowErrors, *rowErr)
			continue
		}
		records = append(records, record)
	}

	return records, rowErrors, nil
}

// splitLines returns the first non-empty line as the header and the remaining
// non-empty lines as data lines.
func splitLines(raw []byte) (string, []string) {
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	header := ""
	var data []string
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		if header == "" {
			header = trimmed
			continue
		}
		data = append(data, trimmed)
	}
	return header, data
}

// detectDelimiter picks the candidate delimiter occurring most often in the
// header row. Falls back to comma.
func detectDelimiter(header string) rune {
	candidates := []rune{',', ';', '\t', '|'}
	best := ','
	bestCount := 0
	for _, c := range candidates {
		if n := strings.Count(header, string(c)); n > bestCount {
			best = c
			bestCount = n
		}
	}
	return best
}

func splitCells(line string, delimiter rune) []string {
	cells := strings.Split(line, string(delimiter))
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// resolveColumns maps column roles to header indices. Hints take precedence;
// otherwise each header is claimed by the first role whose synonyms match it,
// with a fuzzy fallback for typo'd headers. A file without an amount column
// is useless and fails fatally.
func resolveColumns(headers []string, hints map[string]string) (map[string]int, error) {
	columns := make(map[string]int)

	for role, hinted := range hints {
		for i, h := range headers {
			if strings.EqualFold(h, hinted) {
				columns[role] = i
			}
		}
	}

	for i, h := range headers {
		normalized := strings.ToLower(strings.TrimSpace(h))
		for _, role := range roleResolutionOrder {
			if _, taken := columns[role]; taken {
				continue
			}
			if headerMatchesRole(normalized, role) {
				columns[role] = i
				break
			}
		}
	}

	// Fuzzy pass for roles still unresolved: a header within edit distance 2
	// of a synonym (e.g. "amont") still selects the role.
	for _, role := range roleResolutionOrder {
		if _, ok := columns[role]; ok {
			continue
		}
		for i, h := range headers {
			if columnIndexTaken(columns, i) {
				continue
			}
			if headerFuzzyMatchesRole(strings.ToLower(strings.TrimSpace(h)), role) {
				columns[role] = i
				break
			}
		}
	}

	if _, ok := columns[colAmount]; !ok {
		return nil, ErrNoAmountColumn
	}
	return columns, nil
}

func headerMatchesRole(header, role string) bool {
	for _, synonym := range columnSynonyms[role] {
		if strings.Contains(header, synonym) {
			return true
		}
	}
	return false
}

func headerFuzzyMatchesRole(header, role string) bool {
	for _, synonym := range columnSynonyms[role] {
		if len(synonym) < 4 || len(header) < 4 {
			continue
		}
		distance := levenshtein.DistanceForStrings([]rune(header), []rune(synonym), levenshtein.DefaultOptions)
		if distance <= 2 {
			return true
		}
	}
	return false
}

func columnIndexTaken(columns map[string]int, index int) bool {
	for _, i := range columns {
		if i == index {
			return true
		}
	}
	return false
}

// parseRow parses one data line into a SettlementRecord. A cell-count
// mismatch or an unparsable amount/fee degrades to a RowError.
func parseRow(row int, line string, delimiter rune, headerWidth int, columns map[string]int, defaultCurrency string) (model.SettlementRecord, *model.RowError) {
	cells := splitCells(line, delimiter)
	if len(cells) != headerWidth {
		return model.SettlementRecord{}, &model.RowError{
			Row:     row,
			Message: fmt.Sprintf("expected %d cells, got %d", headerWidth, len(cells)),
		}
	}

	amount, err := parseMinorUnits(cells[columns[colAmount]])
	if err != nil {
		return model.SettlementRecord{}, &model.RowError{
			Row:     row,
			Message: fmt.Sprintf("unparsable amount %q", cells[columns[colAmount]]),
		}
	}

	record := model.SettlementRecord{
		Row:      row,
		Amount:   amount,
		Currency: strings.ToUpper(defaultCurrency),
	}

	if idx, ok := columns[colCurrency]; ok && cells[idx] != "" {
		record.Currency = strings.ToUpper(cells[idx])
	}
	if idx, ok := columns[colReference]; ok {
		record.Reference = cells[idx]
	}
	if idx, ok := columns[colFee]; ok && cells[idx] != "" {
		fee, err := parseMinorUnits(cells[idx])
		if err != nil {
			return model.SettlementRecord{}, &model.RowError{
				Row:     row,
				Message: fmt.Sprintf("unparsable fee %q", cells[idx]),
			}
		}
		record.Fee = fee
	}
	if idx, ok := columns[colDate]; ok && cells[idx] != "" {
		if date, ok := parseDate(cells[idx]); ok {
			record.Date = &date
		}
	}

	return record, nil
}

// parseMinorUnits cleans a raw amount cell of currency symbols and thousands
// separators, then converts the decimal value to integer minor units using
// round-half-to-even. Flooring would systematically under-count.
func parseMinorUnits(cell string) (int64, error) {
	cleaned := cleanAmountCell(cell)
	if cleaned == "" || cleaned == "-" {
		return 0, errors.Errorf("empty amount after cleaning %q", cell)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing amount %q", cell)
	}
	return d.Shift(minorUnitExponent).RoundBank(0).IntPart(), nil
}

// cleanAmountCell strips everything that is not a digit, a decimal point or a
// leading minus. Commas are treated as thousands separators.
func cleanAmountCell(cell string) string {
	var b strings.Builder
	for i, r := range cell {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.':
			b.WriteRune(r)
		case r == '-' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseDate(cell string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
