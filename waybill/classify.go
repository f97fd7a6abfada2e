package waybill

// Classify filters tables down to those carrying the shipment-label schema:
// header row equal to Header cell-for-cell, and at least one data row.
// Non-matching tables are dropped silently — they belong to other sections of
// the document and are not an error.
func Classify(tables []Table) []Table {
	var out []Table
	for _, t := range tables {
		if IsShipmentTable(t) {
			out = append(out, t)
		}
	}
	return out
}

// IsShipmentTable reports whether t matches the shipment-label schema.
// A table with fewer than two rows never matches, regardless of header.
func IsShipmentTable(t Table) bool {
	if len(t) < 2 {
		return false
	}
	return headerEqual(t[0])
}

func headerEqual(row []string) bool {
	if len(row) != len(Header) {
		return false
	}
	for i, c := range row {
		if c != Header[i] {
			return false
		}
	}
	return true
}
