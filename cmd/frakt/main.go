// frakt parses a shipment invoice from the command line: a PDF (with an
// extractor sidecar), a pre-extracted grid file, or both. Prints the JSON
// summary; can also sync the records or write a workbook.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hazyhaar/frakt/airtable"
	"github.com/hazyhaar/frakt/docscan"
	"github.com/hazyhaar/frakt/ingest"
	"github.com/hazyhaar/frakt/waybill"
)

func main() {
	pdfPath := flag.String("pdf", "", "invoice PDF to scan for the document envelope")
	gridPath := flag.String("grids", "", "pre-extracted tables JSON")
	extractorURL := flag.String("extractor", "", "table-extraction sidecar URL (needed for -pdf without -grids)")
	xlsxPath := flag.String("xlsx", "", "write parsed records to an XLSX workbook at this path")
	doSync := flag.Bool("sync", false, "push parsed records to the configured datastore")
	cfgPath := flag.String("config", "frakt.yaml", "path to YAML config (for -sync)")
	flag.Parse()

	if *pdfPath == "" && *gridPath == "" {
		fmt.Fprintln(os.Stderr, "usage: frakt -pdf invoice.pdf [-grids tables.json] [-xlsx out.xlsx] [-sync]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	var meta docscan.DocumentMeta
	var pdf []byte
	if *pdfPath != "" {
		var err error
		pdf, err = os.ReadFile(*pdfPath)
		if err != nil {
			log.Fatalf("read pdf: %v", err)
		}
		meta, err = docscan.ScanMeta(*pdfPath)
		if err != nil {
			logger.Warn("meta scan failed", "error", err)
		}
	}

	var grids []waybill.Table
	if *gridPath != "" {
		var err error
		grids, err = docscan.LoadGridFile(*gridPath)
		if err != nil {
			log.Fatalf("load grids: %v", err)
		}
	} else {
		if *extractorURL == "" {
			log.Fatal("need -grids or -extractor for a pdf")
		}
		var err error
		grids, err = docscan.NewSidecar(*extractorURL).Extract(ctx, pdf)
		if err != nil {
			log.Fatalf("extract tables: %v", err)
		}
	}

	records, rowErrs := ingest.ParseGrids(meta, grids)
	sum := ingest.Summary{
		InvoiceNumber: meta.InvoiceNumber,
		InvoiceDate:   meta.InvoiceDate,
		TablesFound:   len(waybill.Classify(grids)),
		Records:       records,
		RowErrors:     rowErrs,
	}

	if *doSync {
		cfg, err := ingest.LoadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if !cfg.Airtable.Enabled() {
			log.Fatal("airtable is not configured")
		}
		res, err := airtable.New(cfg.Airtable, airtable.WithLogger(logger)).Upsert(ctx, records)
		if err != nil {
			log.Fatalf("sync: %v", err)
		}
		sum.Sync = &res
	}

	if *xlsxPath != "" {
		data, err := ingest.BuildXLSX(records)
		if err != nil {
			log.Fatalf("build xlsx: %v", err)
		}
		if err := os.WriteFile(*xlsxPath, data, 0o644); err != nil {
			log.Fatalf("write xlsx: %v", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		log.Fatalf("encode: %v", err)
	}
	if len(rowErrs) > 0 {
		os.Exit(1)
	}
}
