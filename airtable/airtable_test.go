package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/frakt/waybill"
)

func testRecords(n int) []*waybill.Record {
	recs := make([]*waybill.Record, n)
	for i := range recs {
		recs[i] = &waybill.Record{
			Type:       "FedEx",
			TrackingID: fmt.Sprintf("7123456789%02d", i),
			ShipDate:   "01/02/2024",
			Pieces:     1,
			Weight:     0.5,
		}
	}
	return recs
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpsert_Batching(t *testing.T) {
	var requests []upsertRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		if r.URL.Path != "/appBASE/Shipments" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer pat-secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req upsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		requests = append(requests, req)
		w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, BaseID: "appBASE", Table: "Shipments", Token: "pat-secret"},
		WithHTTPClient(srv.Client()), WithLogger(quiet()))

	res, err := c.Upsert(context.Background(), testRecords(25))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if res.Upserted != 25 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(requests) != 3 {
		t.Fatalf("got %d requests, want 3 batches", len(requests))
	}
	for i, want := range []int{10, 10, 5} {
		if len(requests[i].Records) != want {
			t.Errorf("batch %d carried %d records, want %d", i, len(requests[i].Records), want)
		}
	}
	pu := requests[0].PerformUpsert
	if len(pu.FieldsToMergeOn) != 1 || pu.FieldsToMergeOn[0] != "AWB" {
		t.Errorf("fieldsToMergeOn = %v", pu.FieldsToMergeOn)
	}
	if requests[0].Records[0].Fields.TrackingID != "712345678900" {
		t.Errorf("first record AWB = %q", requests[0].Records[0].Fields.TrackingID)
	}
}

func TestUpsert_FailedBatchDoesNotAbortRest(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, `{"error":"INVALID_VALUE_FOR_COLUMN"}`, http.StatusUnprocessableEntity)
			return
		}
		w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, BaseID: "appBASE", Table: "Shipments", Token: "pat"},
		WithHTTPClient(srv.Client()), WithLogger(quiet()))

	res, err := c.Upsert(context.Background(), testRecords(25))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want all 3 batches attempted", calls)
	}
	if res.Upserted != 15 || res.Failed != 10 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "422") {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestUpsert_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, BaseID: "b", Table: "t", Token: "x"},
		WithHTTPClient(srv.Client()), WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Upsert(ctx, testRecords(5)); err == nil {
		t.Fatal("want error from cancelled context")
	}
}

func TestUpsert_Empty(t *testing.T) {
	c := New(Config{BaseID: "b", Table: "t", Token: "x"}, WithLogger(quiet()))
	res, err := c.Upsert(context.Background(), nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if res.Upserted != 0 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("zero config reported enabled")
	}
	if !(Config{BaseID: "b", Table: "t", Token: "x"}).Enabled() {
		t.Error("complete config reported disabled")
	}
}
