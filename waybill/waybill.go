// Package waybill recovers typed shipment records from the table grids of a
// carrier invoice PDF.
//
// The upstream table-detection step yields a grid of text cells per table;
// cells may contain embedded newlines (visually stacked sub-lines). Tables
// whose header row equals the canonical shipment-label schema are parsed into
// Records; everything else (totals, footers, unrelated tables) is ignored.
//
// The interesting part is the composite data cell: a single run-on string
// whose token order depends on which optional sub-fields are present and how
// the extractor broke lines. Disambiguation is driven by structural signals
// (newlines, parentheses, underscores), not by content heuristics.
//
// Usage:
//
//	for _, tbl := range waybill.Classify(tables) {
//		rec, err := waybill.ParseTable(tbl, invoiceNumber)
//		...
//	}
package waybill

import "fmt"

// Table is one extracted table: an ordered sequence of rows, each row an
// ordered sequence of cells. Rows may be ragged. Cells may contain newlines.
type Table [][]string

// Header is the canonical header row of a shipment-label table. A table is a
// shipment table iff its row 0 equals this sequence cell-for-cell, in order,
// with no normalization.
var Header = []string{
	"AWB", "Data wysylki", "Usługa", "Sztuki", "Waga",
	"Numer ref.", "Podlega VAT", "Bez VAT", "Łącznie",
}

// Record is one parsed shipment. JSON tags carry the column names expected by
// the downstream tabular store, which predate this implementation.
//
// Pieces, Weight and the three amounts are all-or-nothing: a Record is only
// produced when every one of them parsed, otherwise ParseTable returns an
// error for the whole row.
type Record struct {
	Type          string `json:"typ"`
	InvoiceNumber string `json:"numer_faktury,omitempty"`
	InvoiceDate   string `json:"data_faktury,omitempty"`

	TrackingID string `json:"AWB"`
	ShipDate   string `json:"data_wysylki"`

	// Package dimensions in centimeters; nil when the label reports none.
	Length *float64 `json:"dlugosc"`
	Width  *float64 `json:"szerokosc"`
	Height *float64 `json:"wysokosc"`

	Service        string   `json:"usluga"`
	InvoicedWeight *float64 `json:"waga_zafakturowana"`

	Pieces    int     `json:"sztuki"`
	Weight    float64 `json:"waga"`
	Reference string  `json:"numer_referencyjny,omitempty"`
	VATLiable float64 `json:"podlega_vat"`
	VATExempt float64 `json:"bez_vat"`
	Total     float64 `json:"lacznie"`

	Sender    string `json:"informacje_nadawca"`
	Recipient string `json:"informacje_odbiorca"`

	ReceivedBy string `json:"odebral,omitempty"`
	ReceivedAt string `json:"czas_odebrania,omitempty"`
}

// UnsupportedLayoutError reports the one structural combination the
// disambiguator deliberately refuses to guess: weight split across two lines
// together with a reference number present. The raw cell is carried so the
// row can be corrected by hand.
type UnsupportedLayoutError struct {
	InvoiceNumber string
	TrackingID    string
	Cell          string
}

func (e *UnsupportedLayoutError) Error() string {
	return fmt.Sprintf("invoice %s: unsupported layout (two-line weight with reference number) AWB %s cell %q",
		e.InvoiceNumber, e.TrackingID, e.Cell)
}

// FieldParseError reports a failed numeric or positional conversion inside a
// row that matched the schema. Always fatal for that row: the mandatory
// fields are never partially populated.
type FieldParseError struct {
	InvoiceNumber string
	TrackingID    string
	Cell          string
	Err           error
}

func (e *FieldParseError) Error() string {
	return fmt.Sprintf("invoice %s: field parse AWB %s cell %q: %v",
		e.InvoiceNumber, e.TrackingID, e.Cell, e.Err)
}

func (e *FieldParseError) Unwrap() error { return e.Err }
