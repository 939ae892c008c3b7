package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"dtp-ingest/config"
	"dtp-ingest/core/dtp"
	"dtp-ingest/core/store"
)

func setupServer(t *testing.T, cfg *config.AppConfig) (*Server, store.BufferStore) {
	t.Helper()
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	cfg.DBPath = filepath.Join(t.TempDir(), "dtp.db")
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	buffer := store.NewBufferStore(db)
	writer := store.NewEntityWriter(db)
	driver := dtp.NewDriver(db, buffer, writer, cfg.Ingest, nil)
	return NewServer(cfg, ServerDeps{Buffer: buffer, Driver: driver}, nil), buffer
}

func doRequest(t *testing.T, s *Server, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestBufferStatsEndpoint(t *testing.T) {
	s, buffer := setupServer(t, nil)
	ctx := context.Background()
	id, _ := buffer.Append(ctx, &store.RawDocument{RegionID: "46", DistrictID: "46440", RawJSON: `{}`})
	_, _ = buffer.Append(ctx, &store.RawDocument{RegionID: "46", DistrictID: "46440", RawJSON: `{}`})
	_ = buffer.MarkErrored(ctx, id, "bad")

	rr := doRequest(t, s, http.MethodGet, "/api/buffer/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var stats store.BufferStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Pending != 1 || stats.Errored != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestErroredInspectionAndReset(t *testing.T) {
	s, buffer := setupServer(t, nil)
	ctx := context.Background()
	id, _ := buffer.Append(ctx, &store.RawDocument{RegionID: "46", DistrictID: "46440", RawJSON: `broken`})
	_ = buffer.MarkErrored(ctx, id, "payload of buffer row 1 is not valid JSON")

	rr := doRequest(t, s, http.MethodGet, "/api/buffer/errored", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Items []store.RawDocument `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].ID != id {
		t.Fatalf("items = %+v", body.Items)
	}

	rr = doRequest(t, s, http.MethodPost, "/api/buffer/errored/reset", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rr.Code)
	}
	stats, _ := buffer.Stats(ctx)
	if stats.Pending != 1 || stats.Errored != 0 {
		t.Fatalf("stats after reset = %+v", stats)
	}
}

func TestRunNowTriggersIngestion(t *testing.T) {
	s, buffer := setupServer(t, nil)
	ctx := context.Background()
	_, _ = buffer.Append(ctx, &store.RawDocument{RegionID: "46", DistrictID: "46440", RawJSON: `{"KartId":"K1"}`})

	rr := doRequest(t, s, http.MethodPost, "/api/ingest/run", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, err := buffer.Stats(ctx)
		if err == nil && stats.Processed == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("triggered run did not process the document, stats = %+v", stats)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := setupServer(t, nil)
	rr := doRequest(t, s, http.MethodGet, "/api/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Running bool            `json:"running"`
		LastRun *dtp.RunSummary `json:"last_run"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Running || body.LastRun != nil {
		t.Fatalf("fresh service must be idle with no summary: %+v", body)
	}
}

func TestAdminTokenGuard(t *testing.T) {
	s, _ := setupServer(t, &config.AppConfig{AdminToken: "s3cret"})

	if rr := doRequest(t, s, http.MethodGet, "/api/buffer/stats", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d", rr.Code)
	}
	if rr := doRequest(t, s, http.MethodGet, "/api/buffer/stats", "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rr.Code)
	}
	if rr := doRequest(t, s, http.MethodGet, "/api/buffer/stats", "s3cret"); rr.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d", rr.Code)
	}
	// Metrics stay reachable for the scraper.
	if rr := doRequest(t, s, http.MethodGet, "/metrics", ""); rr.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", rr.Code)
	}
}
