package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/frakt/docscan"
	"github.com/hazyhaar/frakt/kit"
	"github.com/hazyhaar/frakt/waybill"
)

// NewMCPServer returns an MCP server exposing the parsing pipeline as tools.
func (s *Service) NewMCPServer(version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "frakt", Version: version}, nil)
	s.registerParseGridsTool(srv)
	s.registerHeaderTool(srv)
	return srv
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// logMW logs every tool invocation with its duration.
func (s *Service) logMW(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			s.log.Info("mcp tool",
				"tool", name,
				"transport", kit.GetTransport(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err)
			return resp, err
		}
	}
}

// --- parse grids ---

type parseGridsReq struct {
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   string          `json:"invoice_date"`
	Tables        []waybill.Table `json:"tables"`
	Persist       bool            `json:"persist"`
}

func (s *Service) registerParseGridsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "frakt_parse_grids",
		Description: "Parse extracted invoice table grids into shipment records. Returns records and per-row errors.",
		InputSchema: inputSchema(map[string]any{
			"invoice_number": map[string]any{"type": "string", "description": "Invoice number stamped onto every record"},
			"invoice_date":   map[string]any{"type": "string", "description": "Invoice date (dd/mm/yyyy)"},
			"tables": map[string]any{
				"type":        "array",
				"description": "Extracted tables: rows of cells, cells may contain newlines",
				"items": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
			"persist": map[string]any{"type": "boolean", "description": "Store outcomes and sync when true; dry parse when false"},
		}, []string{"tables"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*parseGridsReq)
		meta := docscan.DocumentMeta{InvoiceNumber: r.InvoiceNumber, InvoiceDate: r.InvoiceDate}
		if r.Persist {
			return s.ProcessGrids(ctx, meta, r.Tables)
		}
		records, rowErrs := ParseGrids(meta, r.Tables)
		return &Summary{
			InvoiceNumber: meta.InvoiceNumber,
			InvoiceDate:   meta.InvoiceDate,
			TablesFound:   len(waybill.Classify(r.Tables)),
			Records:       records,
			RowErrors:     rowErrs,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r parseGridsReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(s.logMW(tool.Name))(endpoint), decode)
}

// --- header ---

func (s *Service) registerHeaderTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "frakt_header",
		Description: "Return the canonical shipment-table header row used for classification.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"header": waybill.Header}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(s.logMW(tool.Name))(endpoint), decode)
}
