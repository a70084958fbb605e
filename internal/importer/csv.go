// Package importer parses the operation's feed files (POS CSV exports,
// RFID correlation CSVs, scorecard workbooks, catalog snapshots) and
// loads them into the store in batches.
package importer

import (
	"encoding/csv"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// ParsePOSCSV reads a point-of-sale transaction export. It maps the
// export columns (Transaction ID, Location, Category, Item ID, Amount,
// Started At, Ended At, Recorded At) to model.POSTransaction fields.
func ParsePOSCSV(csvPath string) ([]model.POSTransaction, error) {
	records, colIdx, err := readCSV(csvPath, "pos", []string{"transaction id", "location", "amount", "started at"})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var txns []model.POSTransaction

	for _, row := range records {
		id := getCol(row, colIdx, "transaction id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		amount, err := parseAmount(getCol(row, colIdx, "amount"))
		if err != nil {
			return nil, eris.Wrapf(err, "pos: transaction %s", id)
		}
		startedAt, err := parseTime(getCol(row, colIdx, "started at"))
		if err != nil {
			return nil, eris.Wrapf(err, "pos: transaction %s", id)
		}
		endedAt, err := parseTime(getCol(row, colIdx, "ended at"))
		if err != nil {
			return nil, eris.Wrapf(err, "pos: transaction %s", id)
		}
		recordedAt, err := parseTime(getCol(row, colIdx, "recorded at"))
		if err != nil {
			return nil, eris.Wrapf(err, "pos: transaction %s", id)
		}
		if recordedAt.IsZero() {
			recordedAt = endedAt
		}

		txns = append(txns, model.POSTransaction{
			ID:           id,
			LocationCode: getCol(row, colIdx, "location"),
			Category:     strings.ToLower(getCol(row, colIdx, "category")),
			ItemID:       getCol(row, colIdx, "item id"),
			Amount:       amount,
			StartedAt:    startedAt,
			EndedAt:      endedAt,
			RecordedAt:   recordedAt,
		})
	}

	if len(txns) == 0 {
		return nil, eris.New("pos: no valid transactions found in csv")
	}
	return txns, nil
}

// ParseRFIDCSV reads a reader correlation export (Tag ID, Item ID,
// Location, Category, Event, Revenue, Observed At).
func ParseRFIDCSV(csvPath string) ([]model.RFIDCorrelation, error) {
	records, colIdx, err := readCSV(csvPath, "rfid", []string{"tag id", "item id", "event", "observed at"})
	if err != nil {
		return nil, err
	}

	var events []model.RFIDCorrelation
	for _, row := range records {
		tagID := getCol(row, colIdx, "tag id")
		if tagID == "" {
			continue
		}

		revenue := decimal.Zero
		if raw := getCol(row, colIdx, "revenue"); raw != "" {
			revenue, err = parseAmount(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "rfid: tag %s", tagID)
			}
		}
		observedAt, err := parseTime(getCol(row, colIdx, "observed at"))
		if err != nil {
			return nil, eris.Wrapf(err, "rfid: tag %s", tagID)
		}

		events = append(events, model.RFIDCorrelation{
			TagID:             tagID,
			ItemID:            getCol(row, colIdx, "item id"),
			LocationCode:      getCol(row, colIdx, "location"),
			Category:          strings.ToLower(getCol(row, colIdx, "category")),
			EventType:         strings.ToLower(getCol(row, colIdx, "event")),
			RevenueAttributed: revenue,
			ObservedAt:        observedAt,
		})
	}

	if len(events) == 0 {
		return nil, eris.New("rfid: no valid correlation events found in csv")
	}
	return events, nil
}

// ParseCatalogCSV reads an item master snapshot (Item ID, Location,
// Category, RFID Tagged).
func ParseCatalogCSV(csvPath string) ([]model.CatalogItem, error) {
	records, colIdx, err := readCSV(csvPath, "catalog", []string{"item id", "location"})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var items []model.CatalogItem

	for _, row := range records {
		id := getCol(row, colIdx, "item id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		tagged := strings.EqualFold(getCol(row, colIdx, "rfid tagged"), "true") ||
			getCol(row, colIdx, "rfid tagged") == "1"

		updatedAt := now
		if raw := getCol(row, colIdx, "updated at"); raw != "" {
			updatedAt, err = parseTime(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "catalog: item %s", id)
			}
		}

		items = append(items, model.CatalogItem{
			ItemID:       id,
			LocationCode: getCol(row, colIdx, "location"),
			Category:     strings.ToLower(getCol(row, colIdx, "category")),
			RFIDTagged:   tagged,
			UpdatedAt:    updatedAt,
		})
	}

	if len(items) == 0 {
		return nil, eris.New("catalog: no valid items found in csv")
	}
	return items, nil
}

// readCSV loads a whole file, builds a case-insensitive header index,
// and verifies the required columns exist.
func readCSV(csvPath, what string, requiredCols []string) ([][]string, map[string]int, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "%s: open csv", what)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "%s: read csv", what)
	}
	if len(records) < 2 {
		return nil, nil, eris.Errorf("%s: csv has no data rows", what)
	}

	header := records[0]
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range requiredCols {
		if _, ok := colIdx[col]; !ok {
			return nil, nil, eris.Errorf("%s: missing required column %q", what, col)
		}
	}

	return records[1:], colIdx, nil
}

// getCol safely retrieves a column value from a CSV row.
func getCol(row []string, colIdx map[string]int, col string) string {
	idx, ok := colIdx[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseAmount accepts "1234.56", "$1,234.56" and plain integers.
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if cleaned == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "parse amount %q", s)
	}
	return d, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// parseTime accepts the timestamp formats the feed systems emit. An
// empty string parses to the zero time; callers decide the fallback.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("parse time %q", s)
}
