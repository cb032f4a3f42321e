package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/terminalops/movewatch/internal/domain"
	"github.com/terminalops/movewatch/internal/store"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500

	// Browsers post the whole PushSubscription JSON; anything bigger than
	// this is not a subscription.
	maxSubscribeBody = 8 << 10
)

// handleRunMonitor runs one monitor pass now. It always returns a structured
// summary on partial internal failure; an error status means the pass could
// not start at all.
func (s *Server) handleRunMonitor(w http.ResponseWriter, r *http.Request) {
	summary, err := s.loop.RunOnce(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("on-demand monitor pass failed to start")
		writeError(w, "monitor pass could not start", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleLatestAlert(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.LatestAlert(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "no alerts recorded", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "alert history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAlertByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, "invalid alert id", http.StatusBadRequest)
		return
	}

	rec, err := s.store.AlertByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "alert not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "alert history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAlertLimit)
	}

	alerts, err := s.store.ListAlerts(r.Context(), limit)
	if err != nil {
		writeError(w, "alert history unavailable", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []domain.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handlePushSubscribe upserts a push endpoint from the browser's
// PushSubscription JSON: {endpoint, keys: {p256dh, auth}}.
func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, maxSubscribeBody)
	if err != nil {
		writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	endpoint := gjson.GetBytes(body, "endpoint").String()
	p256dh := gjson.GetBytes(body, "keys.p256dh").String()
	auth := gjson.GetBytes(body, "keys.auth").String()
	if endpoint == "" || p256dh == "" || auth == "" {
		writeError(w, "endpoint and keys are required", http.StatusBadRequest)
		return
	}

	if _, err := s.store.UpsertSubscription(r.Context(), endpoint, p256dh, auth, s.now()); err != nil {
		log.Error().Err(err).Msg("subscription upsert failed")
		writeError(w, "could not save subscription", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *Server) handlePushCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountSubscriptions(r.Context())
	if err != nil {
		writeError(w, "subscriptions unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"subscriptions": n})
}

// handlePushTest sends an ad-hoc test push to every subscription.
func (s *Server) handlePushTest(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, maxSubscribeBody)
	if err != nil {
		writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	message := gjson.GetBytes(body, "message").String()
	if message == "" {
		message = "Test push from movewatch"
	}

	res := s.push.Broadcast(r.Context(), "Test notification", message)
	writeJSON(w, http.StatusOK, map[string]int{
		"delivered": res.Delivered,
		"failed":    res.Failed,
	})
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.ActiveThresholds(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{
			"thresholds": domain.DefaultThresholds(),
			"fallback":   true,
		})
		return
	}
	if err != nil {
		writeError(w, "settings unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thresholds": t, "fallback": false})
}

func (s *Server) handlePutThresholds(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ImportMinutes   int    `json:"import_minutes"`
		ExportMinutes   int    `json:"export_minutes"`
		RenotifyMinutes int    `json:"renotify_minutes"`
		UpdatedBy       string `json:"updated_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if in.ImportMinutes < 1 || in.ExportMinutes < 1 || in.RenotifyMinutes < 1 {
		writeError(w, "minutes must be >= 1", http.StatusBadRequest)
		return
	}

	t, err := s.store.SaveThresholds(r.Context(), domain.Thresholds{
		ImportMinutes:   in.ImportMinutes,
		ExportMinutes:   in.ExportMinutes,
		RenotifyMinutes: in.RenotifyMinutes,
		UpdatedBy:       in.UpdatedBy,
	}, s.now())
	if err != nil {
		log.Error().Err(err).Msg("save thresholds failed")
		writeError(w, "could not save thresholds", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thresholds": t, "fallback": false})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, "store unreachable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errors.New("body too large")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
