package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/frakt/airtable"
	"github.com/hazyhaar/frakt/docscan"
	"github.com/hazyhaar/frakt/idgen"
	"github.com/hazyhaar/frakt/kit"
	"github.com/hazyhaar/frakt/waybill"
)

// Syncer pushes parsed records downstream. *airtable.Client satisfies it.
type Syncer interface {
	Upsert(ctx context.Context, recs []*waybill.Record) (airtable.SyncResult, error)
}

// Service ties the processing pipeline together. All collaborators are
// optional except the store: without an extractor only grid uploads work,
// without a syncer records stay local.
type Service struct {
	store     *Store
	extractor docscan.Extractor
	syncer    Syncer
	log       *slog.Logger
	newDocID  idgen.Generator
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithExtractor sets the table-extraction sidecar.
func WithExtractor(e docscan.Extractor) ServiceOption {
	return func(s *Service) { s.extractor = e }
}

// WithSyncer sets the downstream record sink.
func WithSyncer(sy Syncer) ServiceOption {
	return func(s *Service) { s.syncer = sy }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithDocIDGenerator replaces the document ID generator, mainly for tests.
func WithDocIDGenerator(gen idgen.Generator) ServiceOption {
	return func(s *Service) { s.newDocID = gen }
}

// NewService returns a Service backed by store.
func NewService(store *Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		log:      slog.Default(),
		newDocID: idgen.Prefixed("doc_", idgen.Default),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for read-side handlers.
func (s *Service) Store() *Store { return s.store }

// Summary is the processing envelope returned for one document.
type Summary struct {
	DocumentID    string               `json:"document_id"`
	InvoiceNumber string               `json:"numer_faktury,omitempty"`
	InvoiceDate   string               `json:"data_faktury,omitempty"`
	TablesFound   int                  `json:"tables_found"`
	Records       []*waybill.Record    `json:"records"`
	RowErrors     []RowError           `json:"row_errors,omitempty"`
	Sync          *airtable.SyncResult `json:"sync,omitempty"`
}

// ProcessDocument runs the whole pipeline for one uploaded document. pdf may
// be nil when pre-extracted grids are supplied; grids may be nil when a PDF
// and an extractor are available. At least one of the two must be usable.
func (s *Service) ProcessDocument(ctx context.Context, pdf []byte, grids []waybill.Table) (*Summary, error) {
	var meta docscan.DocumentMeta
	if len(pdf) > 0 {
		m, err := docscan.ScanMetaReader(bytes.NewReader(pdf))
		if err != nil {
			// A scan failure costs the correction context, not the rows.
			s.log.Warn("document meta scan failed", "error", err)
		} else {
			meta = m
		}
	}

	if grids == nil {
		if len(pdf) == 0 {
			return nil, fmt.Errorf("no grids and no pdf supplied")
		}
		if s.extractor == nil {
			return nil, fmt.Errorf("no extractor configured for pdf-only upload")
		}
		var err error
		grids, err = s.extractor.Extract(ctx, pdf)
		if err != nil {
			return nil, fmt.Errorf("extract tables: %w", err)
		}
	}

	return s.ProcessGrids(ctx, meta, grids)
}

// ProcessGrids classifies and parses the given tables under the document
// meta, persists the outcomes, and syncs the parsed records if a syncer is
// configured. A failed row never blocks its siblings.
func (s *Service) ProcessGrids(ctx context.Context, meta docscan.DocumentMeta, grids []waybill.Table) (*Summary, error) {
	docID := s.newDocID()
	ctx = kit.WithDocumentID(ctx, docID)
	log := s.log.With("document_id", docID, "request_id", kit.GetRequestID(ctx))

	records, rowErrs := ParseGrids(meta, grids)
	sum := &Summary{
		DocumentID:    docID,
		InvoiceNumber: meta.InvoiceNumber,
		InvoiceDate:   meta.InvoiceDate,
		TablesFound:   len(waybill.Classify(grids)),
		Records:       records,
		RowErrors:     rowErrs,
	}
	log.Info("document parsed",
		"invoice", meta.InvoiceNumber,
		"tables", sum.TablesFound,
		"records", len(records),
		"row_errors", len(rowErrs))

	if err := s.persist(ctx, sum); err != nil {
		return nil, err
	}

	if s.syncer != nil && len(records) > 0 {
		res, err := s.syncer.Upsert(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}
		sum.Sync = &res
		log.Info("records synced", "upserted", res.Upserted, "failed", res.Failed)
	}
	return sum, nil
}

func (s *Service) persist(ctx context.Context, sum *Summary) error {
	if sum.InvoiceNumber != "" {
		inv := &Invoice{
			Number:        sum.InvoiceNumber,
			InvoiceDate:   sum.InvoiceDate,
			DocumentID:    sum.DocumentID,
			TablesFound:   sum.TablesFound,
			RecordsParsed: len(sum.Records),
			RowsFailed:    len(sum.RowErrors),
		}
		if err := s.store.UpsertInvoice(ctx, inv); err != nil {
			return fmt.Errorf("store invoice: %w", err)
		}
		if err := s.store.ClearRowErrors(ctx, sum.InvoiceNumber); err != nil {
			return fmt.Errorf("clear row errors: %w", err)
		}
	}
	if err := s.store.UpsertShipments(ctx, sum.Records); err != nil {
		return fmt.Errorf("store shipments: %w", err)
	}
	if err := s.store.InsertRowErrors(ctx, sum.RowErrors); err != nil {
		return fmt.Errorf("store row errors: %w", err)
	}
	return nil
}

// ParseGrids is the pure core of the pipeline: classify, parse each shipment
// table independently, stamp the invoice envelope onto every record, and
// collect per-row failures. No I/O, so the MCP tool and the CLI share it.
func ParseGrids(meta docscan.DocumentMeta, grids []waybill.Table) ([]*waybill.Record, []RowError) {
	var records []*waybill.Record
	var rowErrs []RowError
	for _, tbl := range waybill.Classify(grids) {
		rec, err := waybill.ParseTable(tbl, meta.InvoiceNumber)
		if err != nil {
			rowErrs = append(rowErrs, toRowError(err))
			continue
		}
		rec.InvoiceDate = meta.InvoiceDate
		records = append(records, rec)
	}
	return records, rowErrs
}

func toRowError(err error) RowError {
	var ule *waybill.UnsupportedLayoutError
	if errors.As(err, &ule) {
		return RowError{
			InvoiceNumber: ule.InvoiceNumber,
			AWB:           ule.TrackingID,
			Kind:          "unsupported_layout",
			Cell:          ule.Cell,
			Message:       ule.Error(),
		}
	}
	var fpe *waybill.FieldParseError
	if errors.As(err, &fpe) {
		return RowError{
			InvoiceNumber: fpe.InvoiceNumber,
			AWB:           fpe.TrackingID,
			Kind:          "field_parse",
			Cell:          fpe.Cell,
			Message:       fpe.Error(),
		}
	}
	return RowError{Kind: "field_parse", Message: err.Error()}
}
