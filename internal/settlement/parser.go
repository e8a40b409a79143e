package settlement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	enc "github.com/rickysdata/dataplug/internal/encoding"
)

// Column aliases across the gateways' back-office export formats.
var (
	referenceCols = []string{"reference", "externalref", "external_ref", "transaction_id"}
	gatewayCols   = []string{"gateway_reference", "transactionid", "moolre_reference"}
	amountCols    = []string{"amount", "amount_paid", "value"}
	statusCols    = []string{"status", "txstatus", "final_status"}
	dateCols      = []string{"date", "settled_at", "value_date"}
)

var dateLayouts = []string{time.DateOnly, "02/01/2006", time.RFC3339}

// Parse reads a settlement CSV of unknown charset and column order. The
// header row is matched case-insensitively against known aliases; both
// comma and semicolon separators are accepted.
func Parse(r io.Reader) ([]Row, error) {
	utf8r, err := enc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	raw, err := io.ReadAll(utf8r)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.Comma = detectSeparator(string(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("empty settlement file")
	}

	cols := indexColumns(records[0])

	refIdx, ok := firstMatch(cols, referenceCols)
	if !ok {
		return nil, fmt.Errorf("no reference column found (tried %s)", strings.Join(referenceCols, ", "))
	}

	amountIdx, ok := firstMatch(cols, amountCols)
	if !ok {
		return nil, fmt.Errorf("no amount column found (tried %s)", strings.Join(amountCols, ", "))
	}

	statusIdx, hasStatus := firstMatch(cols, statusCols)
	gatewayIdx, hasGateway := firstMatch(cols, gatewayCols)
	dateIdx, hasDate := firstMatch(cols, dateCols)

	rows := make([]Row, 0, len(records)-1)

	for i, record := range records[1:] {
		ref := field(record, refIdx)
		if ref == "" {
			continue
		}

		amount, err := parseAmount(field(record, amountIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d: amount: %w", i+2, err)
		}

		row := Row{Reference: ref, Amount: amount, SettledAt: time.Now().UTC()}

		if hasStatus {
			row.Status = strings.ToLower(field(record, statusIdx))
		}

		if hasGateway {
			row.GatewayReference = field(record, gatewayIdx)
		}

		if hasDate {
			if t, ok := parseDate(field(record, dateIdx)); ok {
				row.SettledAt = t
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func detectSeparator(content string) rune {
	header, _, _ := strings.Cut(content, "\n")
	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}

	return ','
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))

	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		if name != "" {
			cols[name] = i
		}
	}

	return cols
}

func firstMatch(cols map[string]int, aliases []string) (int, bool) {
	for _, alias := range aliases {
		if idx, ok := cols[alias]; ok {
			return idx, true
		}
	}

	return 0, false
}

func field(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}

	return strings.TrimSpace(record[idx])
}

// parseAmount converts a major-unit amount string ("23.00", "23") to
// minor units.
func parseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return 0, err
	}

	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
