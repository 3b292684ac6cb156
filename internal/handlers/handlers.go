package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/Brownie44l1/fiber-thresholds/internal/centering"
	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/field"
	"github.com/Brownie44l1/fiber-thresholds/internal/model"
	"github.com/Brownie44l1/fiber-thresholds/internal/pipeline"
	"github.com/Brownie44l1/fiber-thresholds/internal/pulse"
	"github.com/Brownie44l1/fiber-thresholds/internal/result"
	"github.com/Brownie44l1/fiber-thresholds/internal/tract"
)

// maxUpload bounds multipart tract uploads.
const maxUpload = 32 << 20

// Model is a loaded threshold model that can describe itself.
type Model interface {
	pipeline.Model
	Metadata() model.Metadata
	Mode() model.Mode
}

type Handler struct {
	model    Model
	sampler  field.Sampler
	strategy centering.Strategy
	workers  int
	logger   *slog.Logger
}

func NewHandler(m Model, sampler field.Sampler, strategy centering.Strategy, workers int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		model:    m,
		sampler:  sampler,
		strategy: strategy,
		workers:  workers,
		logger:   logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Model returns the metadata of the loaded artifact.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.model.Metadata())
}

// Predict runs the model on raw feature vectors.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	pw := pulse.Width(req.PulseWidthUS)
	if !slices.Contains(h.model.PulseWidths(), pw) {
		http.Error(w, fmt.Sprintf("Model has no pulse width %d us", req.PulseWidthUS), http.StatusBadRequest)
		return
	}
	if len(req.Features) == 0 {
		http.Error(w, "No feature vectors provided", http.StatusBadRequest)
		return
	}

	expectedSize := h.model.Layout().Len()
	for i, row := range req.Features {
		if len(row) != expectedSize {
			http.Error(w, fmt.Sprintf("Row %d: expected %d values, got %d", i, expectedSize, len(row)),
				http.StatusBadRequest)
			return
		}
	}

	preds, err := h.model.Predict(r.Context(), req.Features, pw)
	if err != nil {
		h.logger.Error("prediction failed", "pulse_width", pw.Key(), "rows", len(req.Features), "error", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, model.PredictionResponse{
		PulseWidth:  pw.Key(),
		Mode:        h.model.Mode().String(),
		Predictions: preds,
	})
}

// PredictFromTract predicts thresholds for every fiber of an uploaded tract
// file at every pulse width, in the same shape the CLI writes.
func (h *Handler) PredictFromTract(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("tract")
	if err != nil {
		http.Error(w, "No tract file provided. Use 'tract' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	logger := h.logger.With("run_id", pipeline.NewRunID())
	logger.Info("received tract", "file", header.Filename, "bytes", header.Size)

	fibers, err := tract.Parse(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := pipeline.Process(r.Context(), pipeline.Job{
		Fibers:   fibers,
		Sampler:  h.sampler,
		Model:    h.model,
		Strategy: h.strategy,
		Workers:  h.workers,
	}, logger)
	if err != nil {
		if errors.HasCode(err, errors.CodeMalformedFiber) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	data, err := result.Marshal(res)
	if err != nil {
		logger.Error("failed to encode result", "error", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
