package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"health-telemetry/internal/control"
	"health-telemetry/internal/ingest"
	"health-telemetry/internal/logger"
	"health-telemetry/internal/models"
)

// maxBodyBytes bounds a single reading; real payloads are a few hundred bytes.
const maxBodyBytes = 10 * 1024

// Handler serves the telemetry and LED endpoints.
type Handler struct {
	ingest *ingest.Service
	led    *control.LED
	log    *zap.Logger
}

// New returns a handler serving readings from svc and LED state from led.
func New(svc *ingest.Service, led *control.LED, log *zap.Logger) *Handler {
	return &Handler{ingest: svc, led: led, log: log}
}

// Routes registers every endpoint on mux, passing each handler through wrap.
func (h *Handler) Routes(mux *http.ServeMux, wrap func(name string, next http.Handler) http.Handler) {
	mux.Handle("/api/telemetry", wrap("telemetry", http.HandlerFunc(h.Telemetry)))
	mux.Handle("/api/led", wrap("led", http.HandlerFunc(h.LED)))
	mux.Handle("/health", wrap("health", http.HandlerFunc(HealthHandler)))
}

type ingestResponse struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

type queryResponse struct {
	OK     bool           `json:"ok"`
	Latest *models.Entry  `json:"latest"`
	Recent []models.Entry `json:"recent"`
}

// Telemetry routes between POST (ingest a reading) and GET (latest plus
// recent window).
func (h *Handler) Telemetry(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePostTelemetry(w, r)
	case http.MethodGet:
		h.handleGetTelemetry(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePostTelemetry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.ingest.RecordUnreadable(r.Context(), ingest.TransportHTTP, err)
		h.writeJSON(w, r, status, ingestResponse{Error: "could not read request body"})
		return
	}

	res, err := h.ingest.Submit(r.Context(), ingest.TransportHTTP, body)
	if err != nil {
		h.writeJSON(w, r, http.StatusBadRequest, ingestResponse{Error: err.Error()})
		return
	}

	if res.Status == ingest.StatusSkipped {
		h.writeJSON(w, r, http.StatusOK, ingestResponse{Skipped: true, Reason: res.Reason})
		return
	}
	h.writeJSON(w, r, http.StatusCreated, ingestResponse{OK: true})
}

func (h *Handler) handleGetTelemetry(w http.ResponseWriter, r *http.Request) {
	// A missing, unparsable or negative window falls back to the default.
	window := -1
	if s := r.URL.Query().Get("window"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			window = n
		}
	}

	snap := h.ingest.Snapshot(window)
	h.writeJSON(w, r, http.StatusOK, queryResponse{
		OK:     true,
		Latest: snap.Latest,
		Recent: snap.Recent,
	})
}

// LED reports (GET) or sets (POST) the LED flag.
func (h *Handler) LED(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeJSON(w, r, http.StatusOK, map[string]bool{"state": h.led.State()})
	case http.MethodPost:
		h.handlePostLED(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePostLED(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), h.log)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	// Decoded as a map so an explicit null still counts as present.
	var req map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to unmarshal led request", zap.Error(err))
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{
			"status": "error", "message": "invalid JSON body",
		})
		return
	}
	state, ok := req["state"]
	if !ok {
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{
			"status": "error", "message": "state missing",
		})
		return
	}

	on := control.Truthy(state)
	h.led.Set(on)
	log.Info("LED state updated", zap.Bool("state", on))

	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status": "success",
		"state":  on,
	})
}

// HealthHandler returns service health status
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// writeJSON encodes v before writing anything, so an encoding failure can
// still be reported as a clean 500.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.FromContext(r.Context(), h.log).Error("failed to encode response", zap.Error(err))
		writeInternalError(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"ok":false,"error":"internal error"}` + "\n"))
}
