package model

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// RFID correlation event types as emitted by the tag readers.
const (
	RFIDEventOnRent   = "on_rent"
	RFIDEventReturned = "returned"
)

// POSTransaction is one rental contract line exported from the
// point-of-sale system.
type POSTransaction struct {
	ID           string          `json:"id"`
	LocationCode string          `json:"location_code"`
	Category     string          `json:"category"`
	ItemID       string          `json:"item_id"`
	Amount       decimal.Decimal `json:"amount"`
	StartedAt    time.Time       `json:"started_at"`
	EndedAt      time.Time       `json:"ended_at"`
	RecordedAt   time.Time       `json:"recorded_at"`
}

// Validate checks the fields the reconciliation queries depend on.
func (t POSTransaction) Validate() error {
	switch {
	case t.ID == "":
		return eris.New("model: pos transaction: missing id")
	case t.LocationCode == "":
		return eris.Errorf("model: pos transaction %s: missing location_code", t.ID)
	case t.StartedAt.IsZero():
		return eris.Errorf("model: pos transaction %s: missing started_at", t.ID)
	case !t.EndedAt.IsZero() && t.EndedAt.Before(t.StartedAt):
		return eris.Errorf("model: pos transaction %s: ended before it started", t.ID)
	case t.Amount.IsNegative():
		return eris.Errorf("model: pos transaction %s: negative amount", t.ID)
	}
	return nil
}

// RFIDCorrelation is one tag read correlated to a catalog item.
type RFIDCorrelation struct {
	TagID             string          `json:"tag_id"`
	ItemID            string          `json:"item_id"`
	LocationCode      string          `json:"location_code"`
	Category          string          `json:"category"`
	EventType         string          `json:"event_type"`
	RevenueAttributed decimal.Decimal `json:"revenue_attributed"`
	ObservedAt        time.Time       `json:"observed_at"`
}

func (c RFIDCorrelation) Validate() error {
	switch {
	case c.TagID == "":
		return eris.New("model: rfid correlation: missing tag_id")
	case c.ItemID == "":
		return eris.Errorf("model: rfid correlation %s: missing item_id", c.TagID)
	case c.EventType != RFIDEventOnRent && c.EventType != RFIDEventReturned:
		return eris.Errorf("model: rfid correlation %s: unknown event type %q", c.TagID, c.EventType)
	case c.ObservedAt.IsZero():
		return eris.Errorf("model: rfid correlation %s: missing observed_at", c.TagID)
	}
	return nil
}

// FinancialScorecard is one weekly manually-entered scorecard row for a
// location. Revenue is the week's total, utilization a percentage in
// the 0-100 range.
type FinancialScorecard struct {
	LocationCode   string          `json:"location_code"`
	WeekStart      time.Time       `json:"week_start"`
	Revenue        decimal.Decimal `json:"revenue"`
	UtilizationPct decimal.Decimal `json:"utilization_pct"`
	EnteredBy      string          `json:"entered_by"`
	EnteredAt      time.Time       `json:"entered_at"`
}

func (s FinancialScorecard) Validate() error {
	switch {
	case s.LocationCode == "":
		return eris.New("model: scorecard: missing location_code")
	case s.WeekStart.IsZero():
		return eris.Errorf("model: scorecard %s: missing week_start", s.LocationCode)
	case s.UtilizationPct.IsNegative() || s.UtilizationPct.GreaterThan(decimal.NewFromInt(100)):
		return eris.Errorf("model: scorecard %s: utilization %s outside 0-100", s.LocationCode, s.UtilizationPct)
	}
	return nil
}

// CatalogItem is one unit of rentable equipment. RFIDTagged marks units
// that carry a correlated tag and bounds what the RFID source can see.
type CatalogItem struct {
	ItemID       string    `json:"item_id"`
	LocationCode string    `json:"location_code"`
	Category     string    `json:"category"`
	RFIDTagged   bool      `json:"rfid_tagged"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (i CatalogItem) Validate() error {
	switch {
	case i.ItemID == "":
		return eris.New("model: catalog item: missing item_id")
	case i.LocationCode == "":
		return eris.Errorf("model: catalog item %s: missing location_code", i.ItemID)
	}
	return nil
}
