package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/frakt/dbopen"
	"github.com/hazyhaar/frakt/waybill"
)

const storeDDL = `
CREATE TABLE IF NOT EXISTS invoices (
    number          TEXT PRIMARY KEY,
    invoice_date    TEXT,
    document_id     TEXT,
    tables_found    INTEGER NOT NULL DEFAULT 0,
    records_parsed  INTEGER NOT NULL DEFAULT 0,
    rows_failed     INTEGER NOT NULL DEFAULT 0,
    processed_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS shipments (
    invoice_number  TEXT NOT NULL,
    awb             TEXT NOT NULL,
    ship_date       TEXT,
    service         TEXT,
    total           REAL,
    record          TEXT NOT NULL,
    updated_at      TEXT NOT NULL,
    PRIMARY KEY (invoice_number, awb)
);

CREATE TABLE IF NOT EXISTS row_errors (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    invoice_number  TEXT NOT NULL DEFAULT '',
    awb             TEXT NOT NULL DEFAULT '',
    kind            TEXT NOT NULL,
    cell            TEXT NOT NULL DEFAULT '',
    message         TEXT NOT NULL,
    created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shipments_awb    ON shipments(awb);
CREATE INDEX IF NOT EXISTS idx_row_errors_invoice ON row_errors(invoice_number);
`

// Store wraps the SQLite database holding processed invoices, shipment rows
// and the failed-row log kept for manual correction.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the database at path and applies the schema.
func OpenStore(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(storeDDL))
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already-open database, applying the schema. Used with
// dbopen.OpenMemory in tests.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(storeDDL); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// Invoice is one processed document envelope.
type Invoice struct {
	Number        string `json:"numer_faktury"`
	InvoiceDate   string `json:"data_faktury,omitempty"`
	DocumentID    string `json:"document_id,omitempty"`
	TablesFound   int    `json:"tables_found"`
	RecordsParsed int    `json:"records_parsed"`
	RowsFailed    int    `json:"rows_failed"`
	ProcessedAt   string `json:"processed_at"`
}

// UpsertInvoice inserts or replaces the invoice envelope.
func (s *Store) UpsertInvoice(ctx context.Context, inv *Invoice) error {
	if inv.ProcessedAt == "" {
		inv.ProcessedAt = nowRFC3339()
	}
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO invoices (number, invoice_date, document_id, tables_found, records_parsed, rows_failed, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(number) DO UPDATE SET
		   invoice_date = excluded.invoice_date,
		   document_id = excluded.document_id,
		   tables_found = excluded.tables_found,
		   records_parsed = excluded.records_parsed,
		   rows_failed = excluded.rows_failed,
		   processed_at = excluded.processed_at`,
		inv.Number, inv.InvoiceDate, inv.DocumentID,
		inv.TablesFound, inv.RecordsParsed, inv.RowsFailed, inv.ProcessedAt,
	)
	return err
}

// GetInvoice returns an invoice by number. Returns nil, nil if not found.
func (s *Store) GetInvoice(ctx context.Context, number string) (*Invoice, error) {
	inv := &Invoice{}
	err := s.db.QueryRowContext(ctx,
		`SELECT number, invoice_date, document_id, tables_found, records_parsed, rows_failed, processed_at
		 FROM invoices WHERE number = ?`, number,
	).Scan(&inv.Number, &inv.InvoiceDate, &inv.DocumentID,
		&inv.TablesFound, &inv.RecordsParsed, &inv.RowsFailed, &inv.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// UpsertShipments stores records keyed by (invoice number, AWB) in one
// transaction. Re-processing an invoice overwrites its rows in place.
func (s *Store) UpsertShipments(ctx context.Context, recs []*waybill.Record) error {
	if len(recs) == 0 {
		return nil
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		now := nowRFC3339()
		for _, rec := range recs {
			blob, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record %s: %w", rec.TrackingID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO shipments (invoice_number, awb, ship_date, service, total, record, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(invoice_number, awb) DO UPDATE SET
				   ship_date = excluded.ship_date,
				   service = excluded.service,
				   total = excluded.total,
				   record = excluded.record,
				   updated_at = excluded.updated_at`,
				rec.InvoiceNumber, rec.TrackingID, rec.ShipDate, rec.Service, rec.Total,
				string(blob), now,
			); err != nil {
				return fmt.Errorf("upsert shipment %s: %w", rec.TrackingID, err)
			}
		}
		return nil
	})
}

// ListShipments returns the stored records for one invoice, or for all
// invoices when number is empty, ordered by AWB.
func (s *Store) ListShipments(ctx context.Context, number string) ([]*waybill.Record, error) {
	query := `SELECT record FROM shipments ORDER BY invoice_number, awb`
	args := []any{}
	if number != "" {
		query = `SELECT record FROM shipments WHERE invoice_number = ? ORDER BY awb`
		args = append(args, number)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*waybill.Record
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		rec := &waybill.Record{}
		if err := json.Unmarshal([]byte(blob), rec); err != nil {
			return nil, fmt.Errorf("unmarshal stored record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RowError is one failed shipment row, kept so the row can be fixed by hand
// and re-entered. Kind is "unsupported_layout" or "field_parse".
type RowError struct {
	InvoiceNumber string `json:"numer_faktury,omitempty"`
	AWB           string `json:"AWB,omitempty"`
	Kind          string `json:"kind"`
	Cell          string `json:"cell,omitempty"`
	Message       string `json:"message"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// InsertRowErrors appends failed rows to the log.
func (s *Store) InsertRowErrors(ctx context.Context, errs []RowError) error {
	if len(errs) == 0 {
		return nil
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		now := nowRFC3339()
		for _, e := range errs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO row_errors (invoice_number, awb, kind, cell, message, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				e.InvoiceNumber, e.AWB, e.Kind, e.Cell, e.Message, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRowErrors returns logged failures for one invoice, newest first.
func (s *Store) ListRowErrors(ctx context.Context, number string) ([]RowError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT invoice_number, awb, kind, cell, message, created_at
		 FROM row_errors WHERE invoice_number = ? ORDER BY id DESC`, number,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RowError
	for rows.Next() {
		var e RowError
		if err := rows.Scan(&e.InvoiceNumber, &e.AWB, &e.Kind, &e.Cell, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts reports table sizes for the health endpoint.
func (s *Store) Counts(ctx context.Context) (invoices, shipments, rowErrors int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&invoices); err != nil {
		return 0, 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shipments`).Scan(&shipments); err != nil {
		return 0, 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM row_errors`).Scan(&rowErrors); err != nil {
		return 0, 0, 0, err
	}
	return invoices, shipments, rowErrors, nil
}

// ClearRowErrors drops logged failures for an invoice before re-processing.
func (s *Store) ClearRowErrors(ctx context.Context, number string) error {
	_, err := dbopen.Exec(ctx, s.db, `DELETE FROM row_errors WHERE invoice_number = ?`, number)
	return err
}
