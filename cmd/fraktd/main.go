// fraktd is the invoice-processing service: HTTP upload/export surface by
// default, or an MCP stdio server with -mcp for agent integration.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/frakt/airtable"
	"github.com/hazyhaar/frakt/docscan"
	"github.com/hazyhaar/frakt/ingest"
)

const version = "0.3.0"

func main() {
	cfgPath := flag.String("config", "frakt.yaml", "path to YAML config")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools on stdio instead of HTTP")
	flag.Parse()

	cfg, err := ingest.LoadConfig(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("config: %v", err)
		}
		cfg = ingest.DefaultConfig()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	store, err := ingest.OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	opts := []ingest.ServiceOption{ingest.WithLogger(logger)}
	if cfg.Extractor.URL != "" {
		opts = append(opts, ingest.WithExtractor(docscan.NewSidecar(cfg.Extractor.URL)))
	}
	if cfg.Airtable.Enabled() {
		opts = append(opts, ingest.WithSyncer(airtable.New(cfg.Airtable, airtable.WithLogger(logger))))
	}
	svc := ingest.NewService(store, opts...)

	if *mcpMode {
		srv := svc.NewMCPServer(version)
		if err := srv.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
			log.Fatalf("mcp serve: %v", err)
		}
		return
	}

	log.Printf("fraktd %s listening on %s", version, cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, svc.NewRouter(cfg)); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
