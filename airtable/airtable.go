// Package airtable pushes parsed shipment records into an Airtable-style
// tabular datastore. Records are upserted keyed on the AWB column so that
// re-processing an invoice updates rows instead of duplicating them.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/frakt/waybill"
)

// batchSize is the datastore's per-request record limit.
const batchSize = 10

// mergeField is the column upserts are keyed on.
const mergeField = "AWB"

// Config holds the datastore coordinates. Token is a personal access token
// sent as a bearer credential.
type Config struct {
	BaseURL string `yaml:"base_url"`
	BaseID  string `yaml:"base_id"`
	Table   string `yaml:"table"`
	Token   string `yaml:"token"`
}

// Enabled reports whether the config points at a real datastore.
func (c Config) Enabled() bool {
	return c.BaseID != "" && c.Table != "" && c.Token != ""
}

// Client is a batched upsert client. Safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a Client for the configured base and table.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.airtable.com/v0"
	}
	c := &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SyncResult summarizes one Upsert call. A batch that fails is counted whole:
// the datastore applies batches atomically.
type SyncResult struct {
	Upserted int      `json:"upserted"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

type upsertRequest struct {
	PerformUpsert performUpsert `json:"performUpsert"`
	Records       []recordBody  `json:"records"`
	Typecast      bool          `json:"typecast"`
}

type performUpsert struct {
	FieldsToMergeOn []string `json:"fieldsToMergeOn"`
}

type recordBody struct {
	Fields *waybill.Record `json:"fields"`
}

// Upsert sends records in batches of at most batchSize. A failed batch is
// recorded in the result and does not stop later batches. The returned error
// is non-nil only when nothing could be attempted (context or encode level).
func (c *Client) Upsert(ctx context.Context, records []*waybill.Record) (SyncResult, error) {
	var res SyncResult
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := c.sendBatch(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed += len(batch)
			res.Errors = append(res.Errors, err.Error())
			c.log.Error("airtable batch failed", "offset", start, "size", len(batch), "error", err)
			continue
		}
		res.Upserted += len(batch)
		c.log.Debug("airtable batch upserted", "offset", start, "size", len(batch))
	}
	return res, nil
}

func (c *Client) sendBatch(ctx context.Context, batch []*waybill.Record) error {
	body := upsertRequest{
		PerformUpsert: performUpsert{FieldsToMergeOn: []string{mergeField}},
		Records:       make([]recordBody, len(batch)),
		Typecast:      true,
	}
	for i, r := range batch {
		body.Records[i] = recordBody{Fields: r}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, c.cfg.BaseID, c.cfg.Table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
