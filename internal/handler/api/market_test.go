package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"momentum/internal/candles"
	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
	"momentum/internal/usecase"
	xlogger "momentum/pkg/logger"

	"github.com/labstack/echo/v4"
)

type staticStream struct{ connected bool }

func (s *staticStream) IsConnected() bool { return s.connected }

func newTestHandler(t *testing.T, store *candles.Store) *MarketHandler {
	t.Helper()
	log, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	snap := usecase.NewSnapshotUsecase(store, map[string]time.Duration{"5m": 8 * time.Minute})
	return NewMarketHandler(log, snap, nil, &staticStream{connected: true}, "AAPL.US", []string{"AAPL.US", "SPY.US"})
}

func doRequest(h *MarketHandler, target string) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsConnected(t *testing.T) {
	h := newTestHandler(t, candles.NewStore())

	rec := doRequest(h, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}

	var body struct {
		Status int `json:"status"`
		Data   struct {
			Status      string `json:"status"`
			WSConnected bool   `json:"ws_connected"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data.Status != "ok" || !body.Data.WSConnected {
		t.Errorf("health = %+v, want ok/connected", body.Data)
	}
}

func TestCandlesReturnsHistory(t *testing.T) {
	store := candles.NewStore()
	base := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	var hist []models.Candle
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * 5 * time.Minute)
		hist = append(hist, models.Candle{
			Symbol: "AAPL.US", Timeframe: "5m",
			StartTS: start, EndTS: start.Add(5 * time.Minute),
			Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000,
		})
	}
	store.ReplaceHistory("AAPL.US", repository.TF5m, hist)
	h := newTestHandler(t, store)

	rec := doRequest(h, "/api/candles?ticker=AAPL.US&tf=5m&limit=3")
	var body struct {
		Data struct {
			Ticker  string          `json:"ticker"`
			TF      string          `json:"tf"`
			Candles []models.Candle `json:"candles"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data.TF != "5m" {
		t.Errorf("tf = %q, want 5m", body.Data.TF)
	}
	if len(body.Data.Candles) != 3 {
		t.Fatalf("candles = %d, want 3 (limit)", len(body.Data.Candles))
	}
	if !body.Data.Candles[2].StartTS.Equal(hist[4].StartTS) {
		t.Errorf("last candle start = %v, want %v", body.Data.Candles[2].StartTS, hist[4].StartTS)
	}
}

func TestCandlesUnknownTicker(t *testing.T) {
	h := newTestHandler(t, candles.NewStore())

	rec := doRequest(h, "/api/candles?ticker=NOPE")
	var body struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", body.Status)
	}
}

func TestSnapshotDefaultsTicker(t *testing.T) {
	h := newTestHandler(t, candles.NewStore())

	rec := doRequest(h, "/api/snapshot")
	var body struct {
		Status int `json:"status"`
		Data   struct {
			Ticker string `json:"ticker"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", body.Status)
	}
	if body.Data.Ticker != "AAPL.US" {
		t.Errorf("ticker = %q, want default AAPL.US", body.Data.Ticker)
	}
}
