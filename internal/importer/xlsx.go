package importer

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/cascade-rentals/opsdash/internal/model"
)

// ParseScorecardXLSX reads a weekly financial scorecard workbook. The
// first sheet must carry a header row with Location, Week Start,
// Revenue and Utilization columns; Entered By and Entered At are
// optional.
func ParseScorecardXLSX(path string) ([]model.FinancialScorecard, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "scorecard: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("scorecard: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("scorecard: sheet has no data rows")
	}

	colIdx := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		colIdx[strings.ToLower(strings.TrimSpace(cell.String()))] = i
	}
	for _, col := range []string{"location", "week start", "revenue", "utilization"} {
		if _, ok := colIdx[col]; !ok {
			return nil, eris.Errorf("scorecard: missing required column %q", col)
		}
	}

	now := time.Now().UTC()
	var cards []model.FinancialScorecard

	for _, row := range sheet.Rows[1:] {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}

		location := getCol(cells, colIdx, "location")
		if location == "" {
			continue
		}

		weekStart, err := parseTime(getCol(cells, colIdx, "week start"))
		if err != nil {
			return nil, eris.Wrapf(err, "scorecard: %s", location)
		}
		revenue, err := parseAmount(getCol(cells, colIdx, "revenue"))
		if err != nil {
			return nil, eris.Wrapf(err, "scorecard: %s", location)
		}
		utilization, err := parseAmount(strings.TrimSuffix(getCol(cells, colIdx, "utilization"), "%"))
		if err != nil {
			return nil, eris.Wrapf(err, "scorecard: %s", location)
		}

		enteredAt := now
		if raw := getCol(cells, colIdx, "entered at"); raw != "" {
			enteredAt, err = parseTime(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "scorecard: %s", location)
			}
		}

		cards = append(cards, model.FinancialScorecard{
			LocationCode:   location,
			WeekStart:      weekStart,
			Revenue:        revenue,
			UtilizationPct: utilization,
			EnteredBy:      getCol(cells, colIdx, "entered by"),
			EnteredAt:      enteredAt,
		})
	}

	if len(cards) == 0 {
		return nil, eris.New("scorecard: no valid rows found in workbook")
	}
	return cards, nil
}
