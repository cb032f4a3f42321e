package server_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminalops/movewatch/internal/domain"
	"github.com/terminalops/movewatch/internal/server"
)

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/alerts/stream"
}

func TestAlertStream_ReceivesPublishedAlerts(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	rec := domain.AlertRecord{
		ID:    42,
		Kind:  domain.AlertThresholdOverdue,
		Title: "Movement overdue: MSKU0001",
		Body:  "Plate: CL-104",
	}

	// The publish races the server-side subscribe; keep publishing until the
	// client observes a message.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f.hub.Publish(rec)
			}
		}
	}()

	var got domain.AlertRecord
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Kind, got.Kind)
	assert.Equal(t, rec.Title, got.Title)
}

func TestHub_PublishAfterCloseIsSafe(t *testing.T) {
	hub := server.NewHub()
	hub.Close()
	hub.Close() // idempotent

	assert.NotPanics(t, func() {
		hub.Publish(domain.AlertRecord{ID: 1})
	})
}
