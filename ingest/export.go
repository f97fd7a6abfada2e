package ingest

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/hazyhaar/frakt/idgen"
	"github.com/hazyhaar/frakt/waybill"
)

// exportColumns maps workbook columns to record fields, in sheet order.
var exportColumns = []string{
	"Numer faktury", "Data faktury", "AWB", "Data wysylki", "Usługa",
	"Sztuki", "Waga", "Numer ref.", "Podlega VAT", "Bez VAT", "Łącznie",
	"Długość", "Szerokość", "Wysokość", "Waga zafakturowana",
	"Nadawca", "Odbiorca", "Odebrał", "Czas odebrania",
}

// ExportXLSX returns an XLSX workbook of the stored shipments for one
// invoice, or for every invoice when number is empty.
func (s *Service) ExportXLSX(ctx context.Context, number string) ([]byte, error) {
	recs, err := s.store.ListShipments(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	return BuildXLSX(recs)
}

// ExportFileName produces a timestamped name for a downloaded workbook.
func ExportFileName() string {
	return "shipments_" + idgen.Timestamped(idgen.Default)() + ".xlsx"
}

// BuildXLSX renders records into workbook bytes.
func BuildXLSX(recs []*waybill.Record) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Shipments"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		writeDim := func(col int, v *float64) {
			if v != nil {
				write(col, *v)
			}
		}

		write(1, r.InvoiceNumber)
		write(2, r.InvoiceDate)
		write(3, r.TrackingID)
		write(4, r.ShipDate)
		write(5, r.Service)
		write(6, r.Pieces)
		write(7, r.Weight)
		write(8, r.Reference)
		write(9, r.VATLiable)
		write(10, r.VATExempt)
		write(11, r.Total)
		writeDim(12, r.Length)
		writeDim(13, r.Width)
		writeDim(14, r.Height)
		writeDim(15, r.InvoicedWeight)
		write(16, r.Sender)
		write(17, r.Recipient)
		write(18, r.ReceivedBy)
		write(19, r.ReceivedAt)
		row++
	}

	_ = f.SetColWidth(sheet, "A", "B", 14)
	_ = f.SetColWidth(sheet, "C", "C", 16)
	_ = f.SetColWidth(sheet, "E", "E", 28)
	_ = f.SetColWidth(sheet, "P", "Q", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
