package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/frakt/docscan"
	"github.com/hazyhaar/frakt/idgen"
	"github.com/hazyhaar/frakt/kit"
	"github.com/hazyhaar/frakt/waybill"
)

// NewRouter builds the HTTP surface of the service.
func (s *Service) NewRouter(cfg *Config) http.Handler {
	requestIDGen := idgen.Prefixed("req_", idgen.Default)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(contextMiddleware(requestIDGen))

	r.Post("/v1/invoices", s.handleUpload(cfg))
	r.Get("/v1/invoices/{number}", s.handleGetInvoice)
	r.Get("/v1/export.xlsx", s.handleExport)
	r.Get("/v1/health", s.handleHealth)
	return r
}

// contextMiddleware enriches the request context with kit values so log
// lines and stored outcomes can be correlated.
func contextMiddleware(reqIDGen idgen.Generator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := reqIDGen()
			ctx = kit.WithRequestID(ctx, reqID)
			ctx = kit.WithTransport(ctx, "http")
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)

			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleUpload accepts a multipart form with a "pdf" part, a "tables" part
// (pre-extracted grid JSON), or both.
func (s *Service) handleUpload(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes())
		if err := r.ParseMultipartForm(cfg.MaxUploadBytes()); err != nil {
			http.Error(w, fmt.Sprintf("parse form: %v", err), http.StatusBadRequest)
			return
		}

		var pdf []byte
		if file, _, err := r.FormFile("pdf"); err == nil {
			pdf, err = io.ReadAll(file)
			file.Close()
			if err != nil {
				http.Error(w, fmt.Sprintf("read pdf: %v", err), http.StatusBadRequest)
				return
			}
		}

		var grids []waybill.Table
		if file, _, err := r.FormFile("tables"); err == nil {
			grids, err = docscan.DecodeGrids(file)
			file.Close()
			if err != nil {
				http.Error(w, fmt.Sprintf("tables: %v", err), http.StatusBadRequest)
				return
			}
		}

		if len(pdf) == 0 && grids == nil {
			http.Error(w, "need a pdf part, a tables part, or both", http.StatusBadRequest)
			return
		}

		sum, err := s.ProcessDocument(r.Context(), pdf, grids)
		if err != nil {
			s.log.Error("upload failed", "request_id", kit.GetRequestID(r.Context()), "error", err)
			http.Error(w, fmt.Sprintf("process: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, sum)
	}
}

// handleGetInvoice returns the stored envelope, shipment records, and
// failed-row log for one invoice number.
func (s *Service) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	ctx := r.Context()

	inv, err := s.store.GetInvoice(ctx, number)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if inv == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	recs, err := s.store.ListShipments(ctx, number)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	rowErrs, err := s.store.ListRowErrors(ctx, number)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoice":    inv,
		"records":    recs,
		"row_errors": rowErrs,
	})
}

// handleExport streams an XLSX workbook. ?invoice=N limits to one invoice.
func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.ExportXLSX(r.Context(), r.URL.Query().Get("invoice"))
	if err != nil {
		s.log.Error("export failed", "request_id", kit.GetRequestID(r.Context()), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFileName()))
	w.Write(data)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	invoices, shipments, rowErrors, err := s.store.Counts(r.Context())
	status := "ok"
	if err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"invoices":   invoices,
		"shipments":  shipments,
		"row_errors": rowErrors,
	})
}
