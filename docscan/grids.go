package docscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hazyhaar/frakt/waybill"
)

// Extractor produces table grids from raw PDF bytes. The actual table
// detection runs outside this process.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) ([]waybill.Table, error)
}

// gridEnvelope is the wire shape the extractor sidecar returns. Bare
// three-level arrays are accepted too.
type gridEnvelope struct {
	Tables []waybill.Table `json:"tables"`
}

// DecodeGrids parses extracted tables from JSON. Accepts either a bare
// [][][]string or an object with a "tables" key.
func DecodeGrids(r io.Reader) ([]waybill.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var env gridEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Tables != nil {
		return env.Tables, nil
	}
	var bare []waybill.Table
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("decode grids: %w", err)
	}
	return bare, nil
}

// LoadGridFile reads pre-extracted tables from a JSON file on disk.
func LoadGridFile(path string) ([]waybill.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeGrids(f)
}

// Sidecar calls a layout-aware extraction service over HTTP. The service
// receives the PDF body on POST {base}/extract and answers with grid JSON.
type Sidecar struct {
	baseURL string
	client  *http.Client
}

// SidecarOption configures a Sidecar.
type SidecarOption func(*Sidecar)

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) SidecarOption {
	return func(s *Sidecar) { s.client = c }
}

// NewSidecar returns an Extractor backed by the service at baseURL.
func NewSidecar(baseURL string, opts ...SidecarOption) *Sidecar {
	s := &Sidecar{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract posts the PDF and decodes the returned grids.
func (s *Sidecar) Extract(ctx context.Context, pdf []byte) ([]waybill.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/extract", bytes.NewReader(pdf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("extractor: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	tables, err := DecodeGrids(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}
	return tables, nil
}
