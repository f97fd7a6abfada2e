package waybill

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Fixed markers of the shipment-label layout. The column names are Polish
// because the carrier issues Polish-language invoices; they are structural
// constants of the document format, not localizable strings.
const (
	dimensionsMarker = "Wymiary"
	weightMarker     = "Waga"
	senderPrefix     = "Nadawca "
	recipientPrefix  = "Odbiorca "
)

var (
	weightAfterNewlineRe = regexp.MustCompile(`(?i)\nkg`)
	refAfterNewlineRe    = regexp.MustCompile(`\n\(\d+\)`)
	dimensionsRe         = regexp.MustCompile(`Wymiary\s+\S+`)
	numberRe             = regexp.MustCompile(`[\d.,]+`)
	receiverRe           = regexp.MustCompile(`:\s*([^\d]+)`)
	receiptTimeRe        = regexp.MustCompile(`\d.*`)
)

// dataCellNormalizer prepares the composite data cell for tokenization:
// thousands-separator periods are stripped, decimal commas become dots, and
// the currency annotation is removed. Newlines survive — the structural
// signals are read before the cell is collapsed.
var dataCellNormalizer = strings.NewReplacer(".", "", ",", ".", "(PLN)", "")

// layout identifies which of the fixed token-position layouts the composite
// data cell is in. Exactly one layout is selected by the three structural
// signals; the unsupported combination is a distinct variant so that it can
// never fall through into a guessed mapping.
type layout int

const (
	layoutPlain          layout = iota // single-line weight, no reference
	layoutRefUnderscore                // reference split into two tokens joined by underscore
	layoutRefInline                    // parenthesized reference inline with the numbers
	layoutRefOwnLine                   // parenthesized reference on its own line
	layoutWeightTwoLines               // weight value and "kg" unit on separate lines
	layoutUnsupported                  // two-line weight together with a reference
)

// cellSignals are the three structural booleans read from the pre-collapse
// cell text. refUnderscore and refOwnLine are only meaningful when hasRef.
type cellSignals struct {
	weightTwoLines bool
	hasRef         bool
	refUnderscore  bool
	refOwnLine     bool
}

func readSignals(norm string) cellSignals {
	s := cellSignals{
		weightTwoLines: weightAfterNewlineRe.MatchString(norm),
		hasRef:         strings.ContainsAny(norm, "()_"),
	}
	if s.hasRef {
		s.refUnderscore = strings.Contains(norm, "_")
		if !s.refUnderscore {
			s.refOwnLine = refAfterNewlineRe.MatchString(norm)
		}
	}
	return s
}

func resolveLayout(s cellSignals) layout {
	if s.weightTwoLines {
		if s.hasRef {
			return layoutUnsupported
		}
		return layoutWeightTwoLines
	}
	if !s.hasRef {
		return layoutPlain
	}
	if s.refUnderscore {
		return layoutRefUnderscore
	}
	if s.refOwnLine {
		return layoutRefOwnLine
	}
	return layoutRefInline
}

// fieldIndices maps whitespace-split token positions to fields for one layout.
type fieldIndices struct {
	pieces  int
	weight  int
	amounts [3]int
}

var layoutFields = map[layout]fieldIndices{
	layoutPlain:          {pieces: 0, weight: 1, amounts: [3]int{3, 4, 5}},
	layoutRefUnderscore:  {pieces: 1, weight: 2, amounts: [3]int{4, 5, 6}},
	layoutRefInline:      {pieces: 0, weight: 1, amounts: [3]int{4, 5, 6}},
	layoutRefOwnLine:     {pieces: 1, weight: 2, amounts: [3]int{4, 5, 6}},
	layoutWeightTwoLines: {pieces: 1, weight: 0, amounts: [3]int{2, 3, 4}},
}

// ParseTable disambiguates one classified shipment table into a Record.
// invoiceNumber is attached to every returned error for manual correction;
// it may be empty when the enclosing invoice number is unknown.
//
// Errors are either *UnsupportedLayoutError or *FieldParseError. Optional
// fields (dimensions, reference, receiver, receipt time) that are simply
// absent never cause an error.
func ParseTable(t Table, invoiceNumber string) (*Record, error) {
	if len(t) < 2 {
		return nil, &FieldParseError{
			InvoiceNumber: invoiceNumber,
			Err:           fmt.Errorf("table has %d rows, need header plus data", len(t)),
		}
	}
	rows := t[1:]
	data := rows[0]
	if len(data) < 4 {
		return nil, &FieldParseError{
			InvoiceNumber: invoiceNumber,
			Err:           fmt.Errorf("data row has %d cells, need at least 4", len(data)),
		}
	}

	rec := &Record{Type: "FedEx", InvoiceNumber: invoiceNumber}

	// Step A: fixed-position fields.
	if err := parseHeaderCell(data[0], invoiceNumber, rec); err != nil {
		return nil, err
	}
	parseServiceCell(data[2], rec)

	// Step B: the composite data cell.
	if err := parseDataCell(data[3], invoiceNumber, rec); err != nil {
		return nil, err
	}

	// Step C: sender/recipient/footer. All tolerant of absence.
	if len(rows) > 1 {
		if len(rows[1]) > 0 {
			rec.Sender = stripBlockPrefix(rows[1][0], senderPrefix)
		}
		if len(rows[1]) > 2 {
			rec.Recipient = stripBlockPrefix(rows[1][2], recipientPrefix)
		}
	}
	if len(rows) > 2 && len(rows[2]) > 0 {
		rec.ReceivedBy, rec.ReceivedAt = parseFooterCell(rows[2][0])
	}

	return rec, nil
}

// parseHeaderCell reads cell 0: first line is "<tracking-id> <ship-date>",
// optional second line reports package dimensions.
func parseHeaderCell(cell, invoiceNumber string, rec *Record) error {
	lines := strings.Split(cell, "\n")
	first := strings.SplitN(lines[0], " ", 2)
	rec.TrackingID = first[0]
	if len(first) < 2 || strings.TrimSpace(first[1]) == "" {
		return &FieldParseError{
			InvoiceNumber: invoiceNumber,
			TrackingID:    rec.TrackingID,
			Cell:          cell,
			Err:           fmt.Errorf("missing ship date after tracking id"),
		}
	}
	rec.ShipDate = strings.TrimSpace(first[1])

	if len(lines) < 2 || !dimensionsRe.MatchString(lines[1]) {
		// No dimensions reported. Not an error.
		return nil
	}

	dims := lines[1]
	dims = dims[strings.Index(dims, dimensionsMarker)+len(dimensionsMarker):]
	if i := strings.Index(dims, "cm"); i >= 0 {
		dims = dims[:i]
	}
	parts := strings.Split(strings.TrimSpace(dims), "x")
	if len(parts) != 3 {
		// The marker was present but the value is not LxWxH; leave unset.
		return nil
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return &FieldParseError{
				InvoiceNumber: invoiceNumber,
				TrackingID:    rec.TrackingID,
				Cell:          cell,
				Err:           fmt.Errorf("dimensions: %w", err),
			}
		}
		vals[i] = v
	}
	rec.Length, rec.Width, rec.Height = &vals[0], &vals[1], &vals[2]
	return nil
}

// parseServiceCell reads cell 2: text before the weight marker is the service
// description; the first number after it is the invoiced weight in kg.
// Both degrade to empty/nil when the cell does not match.
func parseServiceCell(cell string, rec *Record) {
	parts := strings.SplitN(cell, weightMarker, 2)
	rec.Service = strings.TrimSpace(strings.ReplaceAll(parts[0], "\n", " "))
	if len(parts) < 2 {
		return
	}
	m := numberRe.FindString(parts[1])
	if m == "" {
		return
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return
	}
	rec.InvoicedWeight = &v
}

// parseDataCell disambiguates the composite cell 3 and fills pieces, weight,
// reference and the three amounts. Any failure here is fatal for the row.
func parseDataCell(cell, invoiceNumber string, rec *Record) error {
	norm := dataCellNormalizer.Replace(cell)
	sig := readSignals(norm)
	lay := resolveLayout(sig)

	if lay == layoutUnsupported {
		return &UnsupportedLayoutError{
			InvoiceNumber: invoiceNumber,
			TrackingID:    rec.TrackingID,
			Cell:          cell,
		}
	}

	toks := strings.Fields(norm)
	fail := func(err error) error {
		return &FieldParseError{
			InvoiceNumber: invoiceNumber,
			TrackingID:    rec.TrackingID,
			Cell:          cell,
			Err:           err,
		}
	}
	tok := func(i int) (string, error) {
		if i < 0 || i >= len(toks) {
			return "", fmt.Errorf("token %d out of range (cell has %d tokens)", i, len(toks))
		}
		return toks[i], nil
	}

	idx := layoutFields[lay]

	s, err := tok(idx.pieces)
	if err != nil {
		return fail(err)
	}
	pieces, err := strconv.Atoi(s)
	if err != nil {
		return fail(fmt.Errorf("piece count: %w", err))
	}

	if s, err = tok(idx.weight); err != nil {
		return fail(err)
	}
	weight, err := parseWeightToken(s)
	if err != nil {
		return fail(fmt.Errorf("weight: %w", err))
	}

	var amounts [3]float64
	for i, ai := range idx.amounts {
		if s, err = tok(ai); err != nil {
			return fail(err)
		}
		amounts[i], err = strconv.ParseFloat(s, 64)
		if err != nil {
			return fail(fmt.Errorf("amount %d: %w", i+1, err))
		}
	}

	ref, err := referenceFor(lay, tok)
	if err != nil {
		return fail(err)
	}

	rec.Pieces = pieces
	rec.Weight = weight
	rec.Reference = ref
	rec.VATLiable = amounts[0]
	rec.VATExempt = amounts[1]
	rec.Total = amounts[2]
	return nil
}

// referenceFor extracts the reference number for layouts that carry one.
func referenceFor(lay layout, tok func(int) (string, error)) (string, error) {
	switch lay {
	case layoutRefUnderscore:
		// The reference is split into a leading and a trailing token.
		head, err := tok(0)
		if err != nil {
			return "", err
		}
		tail, err := tok(7)
		if err != nil {
			return "", err
		}
		return head + tail, nil
	case layoutRefInline:
		s, err := tok(3)
		if err != nil {
			return "", err
		}
		return stripParens(s), nil
	case layoutRefOwnLine:
		s, err := tok(7)
		if err != nil {
			return "", err
		}
		return stripParens(s), nil
	default:
		return "", nil
	}
}

// parseWeightToken converts a weight token, tolerating an attached unit
// suffix ("345.60kg") which the extractor sometimes glues onto the number.
func parseWeightToken(s string) (float64, error) {
	trimmed := s
	if n := len(s); n > 2 && strings.EqualFold(s[n-2:], "kg") {
		trimmed = s[:n-2]
	}
	return strconv.ParseFloat(trimmed, 64)
}

func stripParens(s string) string {
	return strings.NewReplacer("(", "", ")", "").Replace(s)
}

func stripBlockPrefix(cell, prefix string) string {
	flat := strings.ReplaceAll(cell, "\n", " ")
	flat = strings.ReplaceAll(flat, prefix, "")
	return strings.TrimSpace(flat)
}

// parseFooterCell reads the "received by" footer: text between the colon and
// the first digit is the receiver name; the digit run onward is the receipt
// timestamp. Either may be absent.
func parseFooterCell(cell string) (receivedBy, receivedAt string) {
	if m := receiverRe.FindStringSubmatch(cell); m != nil {
		receivedBy = strings.TrimSpace(m[1])
	}
	receivedAt = receiptTimeRe.FindString(cell)
	return receivedBy, receivedAt
}
