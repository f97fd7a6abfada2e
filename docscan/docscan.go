// Package docscan reads the document-level envelope of a shipment invoice:
// invoice number and invoice date from the PDF text, and the extracted table
// grids from whichever source produced them.
//
// Table detection itself is not done here. Grids arrive either pre-extracted
// as JSON (LoadGridFile, DecodeGrids) or from a layout-aware extractor
// sidecar over HTTP (Sidecar). docscan only locates the invoice metadata in
// the raw page text, which plain content-stream extraction is good enough for.
package docscan

import (
	"fmt"
	"io"
	"regexp"
)

// DocumentMeta is the invoice-level envelope shared by every shipment row of
// one document.
type DocumentMeta struct {
	InvoiceNumber string `json:"numer_faktury"`
	InvoiceDate   string `json:"data_faktury"`
}

var (
	invoiceNumberRe = regexp.MustCompile(`Numer\s+faktury\s+VAT:\s*([0-9]+)`)
	invoiceDateRe   = regexp.MustCompile(`Data\s+faktury:\s*([0-9]{2}/[0-9]{2}/[0-9]{4})`)
)

// MetaFromText scans extracted page text for the invoice number and date.
// Fields not found stay empty; a shipment row can still be parsed without
// them, it just loses the correction context.
func MetaFromText(text string) DocumentMeta {
	var meta DocumentMeta
	if m := invoiceNumberRe.FindStringSubmatch(text); m != nil {
		meta.InvoiceNumber = m[1]
	}
	if m := invoiceDateRe.FindStringSubmatch(text); m != nil {
		meta.InvoiceDate = m[1]
	}
	return meta
}

// ScanMeta extracts text from the PDF at path and reads the invoice metadata
// out of it. The metadata lives on the first page, so extraction stops early.
func ScanMeta(path string) (DocumentMeta, error) {
	text, err := ExtractText(path, 2)
	if err != nil {
		return DocumentMeta{}, fmt.Errorf("scan meta: %w", err)
	}
	return MetaFromText(text), nil
}

// ScanMetaReader is ScanMeta for an in-memory document (e.g. an upload).
func ScanMetaReader(rs io.ReadSeeker) (DocumentMeta, error) {
	text, err := extractText(rs, 2)
	if err != nil {
		return DocumentMeta{}, fmt.Errorf("scan meta: %w", err)
	}
	return MetaFromText(text), nil
}
