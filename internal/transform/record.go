// Package transform turns arrival spreadsheets into upload records.
package transform

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
)

// UploadRecord is the JSON body of one expected-arrival submission.
// Every key is always sent; a column missing from the source is sent empty.
type UploadRecord struct {
	OwnerID                    string `json:"ownerID"`
	TradingPartnerID           string `json:"tradingPartnerID"`
	ForeignSystemKey           string `json:"foreignSystemKey"`
	WarehouseID                string `json:"warehouseID"`
	AnticipatedArrivalDatetime string `json:"anticipatedArrivalDatetime"`
	OurPurchaseOrder           string `json:"ourPurchaseOrder"`
	BillOfLadingNumber         string `json:"billOfLadingNumber"`
}

// Source column headers.
const (
	ColOwnerID          = "Owner ID"
	ColTradingPartnerID = "Trading Partner ID"
	ColForeignSystemKey = "Foreign System Key"
	ColWarehouseID      = "Warehouse ID"
	ColArrivalDatetime  = "Anticipated Arrival Date Time(MM/DD/YYYY)"
	ColOurPO            = "Our PO"
	ColBillOfLading     = "Bill of Lading"
)

var setters = map[string]func(*UploadRecord, string){
	ColOwnerID:          func(r *UploadRecord, v string) { r.OwnerID = v },
	ColTradingPartnerID: func(r *UploadRecord, v string) { r.TradingPartnerID = v },
	ColForeignSystemKey: func(r *UploadRecord, v string) { r.ForeignSystemKey = v },
	ColWarehouseID:      func(r *UploadRecord, v string) { r.WarehouseID = v },
	ColArrivalDatetime:  func(r *UploadRecord, v string) { r.AnticipatedArrivalDatetime = v },
	ColOurPO:            func(r *UploadRecord, v string) { r.OurPurchaseOrder = v },
	ColBillOfLading:     func(r *UploadRecord, v string) { r.BillOfLadingNumber = v },
}

// ParseError reports a malformed source file. Line is 1-based; 0 means the
// failure was not tied to a row.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == common.ErrParse }

// columnMap maps a source column index to the record field it fills.
type columnMap []func(*UploadRecord, string)

func newColumnMap(header []string) columnMap {
	m := make(columnMap, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		m[i] = setters[h]
	}
	return m
}

func (m columnMap) build(row []string) UploadRecord {
	var rec UploadRecord
	for i, v := range row {
		if i < len(m) && m[i] != nil {
			m[i](&rec, v)
		}
	}
	return rec
}
