package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/memebot/internal/domain"
	"github.com/alanyoungcy/memebot/internal/server/handler"
)

type fakeHealth struct{ h domain.Health }

func (f fakeHealth) Health(context.Context) domain.Health { return f.h }

type fakePortfolio struct{ v domain.PortfolioView }

func (f fakePortfolio) Snapshot() domain.PortfolioView { return f.v }

type countingLimiter struct {
	mu    sync.Mutex
	seen  map[string]int
	limit int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

func (l *countingLimiter) Wait(context.Context, string) error { return nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func samplePortfolio() domain.PortfolioView {
	return domain.PortfolioView{
		Open: []domain.PositionView{{
			Position: domain.Position{
				ID:          "p1",
				Token:       "0xabc",
				Status:      domain.PositionStatusOpen,
				EntryPrice:  decimal.RequireFromString("0.001"),
				EntryNative: decimal.RequireFromString("0.3"),
			},
			UnrealizedPnL:    decimal.RequireFromString("0.06"),
			UnrealizedPnLBps: decimal.NewFromInt(2000),
		}},
		Closed:        []domain.Position{{ID: "p0", Status: domain.PositionStatusClosed, CloseReason: domain.CloseStopLoss}},
		Capacity:      4,
		TotalOpen:     1,
		UnrealizedPnL: decimal.RequireFromString("0.06"),
	}
}

func newTestServer(cfg Config, health domain.Health, limiter domain.RateLimiter) *Server {
	return New(cfg, Handlers{
		Health:    handler.NewHealthHandler(fakeHealth{health}, discard()),
		Portfolio: handler.NewPortfolioHandler(fakePortfolio{samplePortfolio()}),
	}, nil, limiter, discard())
}

func get(t *testing.T, h http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(Config{}, domain.Health{SyncedBlock: 19_000_123, OK: true}, nil)
	rec := get(t, s.Handler(), "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"synced_block":19000123,"ok":true}`, rec.Body.String())

	s = newTestServer(Config{}, domain.Health{}, nil)
	rec = get(t, s.Handler(), "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"synced_block":0,"ok":false}`, rec.Body.String())
}

func TestPortfolio(t *testing.T) {
	s := newTestServer(Config{}, domain.Health{OK: true}, nil)
	rec := get(t, s.Handler(), "/portfolio", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 4, body["capacity"])
	assert.EqualValues(t, 1, body["total_open"])
	assert.Equal(t, "0.06", body["unrealized_pnl_native"])

	open := body["open"].([]any)
	require.Len(t, open, 1)
	first := open[0].(map[string]any)
	assert.Equal(t, "0xabc", first["token"])
	assert.Equal(t, "0.06", first["unrealized_pnl"])
	assert.Equal(t, "2000", first["unrealized_pnl_bps"])
	assert.Len(t, body["closed"], 1)

	rec = get(t, s.Handler(), "/portfolio?closed=false", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body["closed"])

	rec = get(t, s.Handler(), "/portfolio?closed=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadOnly(t *testing.T) {
	s := newTestServer(Config{}, domain.Health{OK: true}, nil)
	req := httptest.NewRequest(http.MethodPost, "/portfolio", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuth(t *testing.T) {
	s := newTestServer(Config{APIKey: "k"}, domain.Health{SyncedBlock: 1, OK: true}, nil)

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, s.Handler(), "/portfolio", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, s.Handler(), "/portfolio", map[string]string{"X-API-Key": "nope"}).Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/portfolio", map[string]string{"Authorization": "Bearer k"}).Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/portfolio", map[string]string{"X-API-Key": "k"}).Code)
}

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{seen: map[string]int{}, limit: 2}
	s := newTestServer(Config{RateLimitPerMinute: 2}, domain.Health{SyncedBlock: 1, OK: true}, lim)

	hdr := map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/health", hdr).Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/health", hdr).Code)

	rec := get(t, s.Handler(), "/health", hdr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, 3, lim.seen["api:203.0.113.9"])
}

func TestRateLimit_FailsOpen(t *testing.T) {
	lim := &countingLimiter{seen: map[string]int{}, err: assert.AnError}
	s := newTestServer(Config{RateLimitPerMinute: 1}, domain.Health{SyncedBlock: 1, OK: true}, lim)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/health", nil).Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(Config{CORSOrigins: []string{"https://dash.example"}, APIKey: "k"}, domain.Health{OK: true}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/portfolio", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, s.Handler(), "/health", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
