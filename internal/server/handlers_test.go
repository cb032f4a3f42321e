package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/terminalops/movewatch/internal/config"
	"github.com/terminalops/movewatch/internal/domain"
	"github.com/terminalops/movewatch/internal/monitor"
	"github.com/terminalops/movewatch/internal/notify"
	"github.com/terminalops/movewatch/internal/server"
	"github.com/terminalops/movewatch/internal/store"
)

type fixture struct {
	store   *store.Store
	handler http.Handler
	hub     *server.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	loop := monitor.NewLoop(monitor.LoopConfig{
		Repo:      st,
		Directory: st,
		History:   st,
		Settings:  st,
		Period:    time.Minute,
		Location:  time.UTC,
	})

	hub := server.NewHub()
	t.Cleanup(hub.Close)

	push := notify.NewPush(config.PushChannelConfig{}, st, nil)
	srv := server.New(config.ServerConfig{Port: 0, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second},
		st, loop, push, hub, time.UTC)

	return &fixture{store: st, handler: srv.Handler(), hub: hub}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) appendAlert(t *testing.T, kind domain.AlertKind, title string) int64 {
	t.Helper()
	id, err := f.store.AppendAlert(context.Background(), &domain.AlertRecord{
		Kind:      kind,
		Title:     title,
		Body:      "body",
		CreatedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return id
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRunMonitor(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/monitor/run", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, gjson.Get(body, "alerts_fired").Exists())
	assert.Equal(t, int64(0), gjson.Get(body, "alerts_fired").Int())
	assert.True(t, gjson.Get(body, "ran_at").Exists())
}

func TestAlertEndpoints(t *testing.T) {
	f := newFixture(t)

	t.Run("latest with empty history", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/alerts/latest", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	id1 := f.appendAlert(t, domain.AlertThresholdOverdue, "first")
	id2 := f.appendAlert(t, domain.AlertOrderAnomaly, "second")

	t.Run("latest", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/alerts/latest", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id2, gjson.Get(rec.Body.String(), "id").Int())
		assert.Equal(t, "second", gjson.Get(rec.Body.String(), "title").String())
	})

	t.Run("by id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/alerts/1", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id1, gjson.Get(rec.Body.String(), "id").Int())
	})

	t.Run("by id not found", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/alerts/999", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("by id invalid", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/alerts/abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list newest first", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/alerts", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		items := gjson.Parse(rec.Body.String()).Array()
		require.Len(t, items, 2)
		assert.Equal(t, id2, items[0].Get("id").Int())
		assert.Equal(t, id1, items[1].Get("id").Int())
	})

	t.Run("list with limit", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/alerts?limit=1", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, gjson.Parse(rec.Body.String()).Array(), 1)
	})

	t.Run("list with invalid limit", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/alerts?limit=0", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListAlerts_EmptyHistoryIsArray(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/alerts", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestPushSubscribe(t *testing.T) {
	f := newFixture(t)

	subscription := `{"endpoint":"https://push.example.com/sub/1","keys":{"p256dh":"pk","auth":"secret"}}`

	rec := f.do(t, http.MethodPost, "/push/subscribe", subscription)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/push/count", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "subscriptions").Int())

	// Re-registering the same endpoint does not grow the registry.
	rec = f.do(t, http.MethodPost, "/push/subscribe", subscription)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/push/count", "")
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "subscriptions").Int())
}

func TestPushSubscribe_Invalid(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing endpoint", `{"keys":{"p256dh":"pk","auth":"secret"}}`, http.StatusBadRequest},
		{"missing keys", `{"endpoint":"https://push.example.com/sub/1"}`, http.StatusBadRequest},
		{"not json", "not json at all", http.StatusBadRequest},
		{"oversized body", `{"endpoint":"` + strings.Repeat("x", 9<<10) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/push/subscribe", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPushTest_DisabledChannel(t *testing.T) {
	f := newFixture(t)

	// The fixture's push channel has no VAPID keys, so nothing is delivered.
	rec := f.do(t, http.MethodPost, "/push/test", `{"message":"hello"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), gjson.Get(rec.Body.String(), "delivered").Int())
	assert.Equal(t, int64(0), gjson.Get(rec.Body.String(), "failed").Int())
}

func TestThresholds(t *testing.T) {
	f := newFixture(t)

	t.Run("defaults before any save", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/settings/thresholds", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		body := rec.Body.String()
		assert.True(t, gjson.Get(body, "fallback").Bool())
		assert.Equal(t, int64(20), gjson.Get(body, "thresholds.import_minutes").Int())
		assert.Equal(t, int64(30), gjson.Get(body, "thresholds.export_minutes").Int())
		assert.Equal(t, int64(3), gjson.Get(body, "thresholds.renotify_minutes").Int())
	})

	t.Run("save and read back", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/settings/thresholds",
			`{"import_minutes":25,"export_minutes":40,"renotify_minutes":5,"updated_by":"ops"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodGet, "/settings/thresholds", "")
		body := rec.Body.String()
		assert.False(t, gjson.Get(body, "fallback").Bool())
		assert.Equal(t, int64(25), gjson.Get(body, "thresholds.import_minutes").Int())
		assert.Equal(t, int64(40), gjson.Get(body, "thresholds.export_minutes").Int())
	})

	t.Run("rejects invalid minutes", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/settings/thresholds",
			`{"import_minutes":0,"export_minutes":40,"renotify_minutes":5}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/settings/thresholds", "{")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, "/alerts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
