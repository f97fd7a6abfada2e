package ingest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hazyhaar/frakt/waybill"
)

func TestBuildXLSX(t *testing.T) {
	l, w, h := 30.0, 20.0, 10.0
	recs := []*waybill.Record{
		{
			InvoiceNumber: "790000001",
			InvoiceDate:   "15/03/2024",
			TrackingID:    "712345678901",
			ShipDate:      "01/02/2024",
			Service:       "FedEx International Priority",
			Pieces:        2,
			Weight:        1.5,
			Reference:     "PO_4711",
			VATLiable:     110,
			VATExempt:     220,
			Total:         330,
			Length:        &l, Width: &w, Height: &h,
			Sender:    "Jan Kowalski",
			Recipient: "ACME GmbH",
		},
		{
			InvoiceNumber: "790000001",
			TrackingID:    "712345678902",
			Pieces:        1,
			Weight:        0.5,
		},
	}

	data, err := BuildXLSX(recs)
	if err != nil {
		t.Fatalf("BuildXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Shipments")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "Numer faktury" || rows[0][2] != "AWB" {
		t.Errorf("header row = %v", rows[0])
	}
	if rows[1][2] != "712345678901" {
		t.Errorf("AWB cell = %q", rows[1][2])
	}
	if rows[1][7] != "PO_4711" {
		t.Errorf("reference cell = %q", rows[1][7])
	}
	if rows[1][11] != "30" {
		t.Errorf("length cell = %q", rows[1][11])
	}
}

func TestBuildXLSX_Empty(t *testing.T) {
	data, err := BuildXLSX(nil)
	if err != nil {
		t.Fatalf("BuildXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("Shipments")
	if len(rows) != 1 {
		t.Errorf("got %d rows, want header only", len(rows))
	}
}

func TestExportXLSX_FromStore(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	recs := []*waybill.Record{
		{InvoiceNumber: "790", TrackingID: "7001", Total: 100},
		{InvoiceNumber: "791", TrackingID: "7002", Total: 200},
	}
	if err := svc.Store().UpsertShipments(ctx, recs); err != nil {
		t.Fatal(err)
	}

	data, err := svc.ExportXLSX(ctx, "790")
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, _ := f.GetRows("Shipments")
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1 for filtered export", len(rows))
	}

	data, err = svc.ExportXLSX(ctx, "")
	if err != nil {
		t.Fatalf("ExportXLSX all: %v", err)
	}
	f2, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()
	rows, _ = f2.GetRows("Shipments")
	if len(rows) != 3 {
		t.Errorf("got %d rows, want header + 2 for full export", len(rows))
	}
}

func TestExportFileName(t *testing.T) {
	name := ExportFileName()
	if !strings.HasPrefix(name, "shipments_") || !strings.HasSuffix(name, ".xlsx") {
		t.Errorf("name = %q", name)
	}
}
