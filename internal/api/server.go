// Package api exposes the synchronous ingress endpoint and the query surface
// over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BarirNada00/AquaWatch-Ms/internal/buffer"
	"github.com/BarirNada00/AquaWatch-Ms/internal/health"
	"github.com/BarirNada00/AquaWatch-Ms/internal/logger"
	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
	"github.com/BarirNada00/AquaWatch-Ms/internal/pipeline"
)

// Handler serves the detection API: reading ingestion plus the anomaly and
// status query endpoints.
type Handler struct {
	pipeline *pipeline.Pipeline
	buffer   *buffer.Buffer
	health   *health.Aggregator
}

// NewHandler creates the API handler.
func NewHandler(p *pipeline.Pipeline, b *buffer.Buffer, h *health.Aggregator) *Handler {
	return &Handler{pipeline: p, buffer: b, health: h}
}

// Router builds the HTTP route table.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/data", h.handleData)
	r.Get("/anomalies", h.handleAnomalies)
	r.Get("/status", h.handleStatus)
	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type dataResponse struct {
	Status            string `json:"status"`
	AnomaliesDetected int    `json:"anomalies_detected"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (h *Handler) handleData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: "failed to read request body"})
		return
	}

	n, err := h.pipeline.ProcessRaw(body)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: err.Error()})
			return
		}
		logger.Error("Error processing posted reading: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Status: "ok", AnomaliesDetected: n})
}

func (h *Handler) handleAnomalies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.buffer.Snapshot())
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Snapshot())
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}
