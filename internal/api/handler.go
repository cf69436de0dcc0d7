package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"fraud_scoring/internal/analysis"
	"fraud_scoring/internal/domain"
	"fraud_scoring/internal/drift"
	"fraud_scoring/internal/model"
	"fraud_scoring/internal/scoring"
	"fraud_scoring/internal/trainer"
	"fraud_scoring/pkg/metrics"
)

type APIHandler struct {
	registry   *model.Registry
	engine     *scoring.Engine
	thresholds *scoring.ThresholdManager
	batch      *scoring.BatchCoordinator
	monitor    *drift.Monitor
	analyzer   analysis.Provider
	trainer    *trainer.Runner
	metrics    *metrics.MetricsCollector
	logger     *slog.Logger
}

func NewAPIHandler(
	registry *model.Registry,
	engine *scoring.Engine,
	thresholds *scoring.ThresholdManager,
	batch *scoring.BatchCoordinator,
	monitor *drift.Monitor,
	analyzer analysis.Provider,
	trainer *trainer.Runner,
	metrics *metrics.MetricsCollector,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		registry:   registry,
		engine:     engine,
		thresholds: thresholds,
		batch:      batch,
		monitor:    monitor,
		analyzer:   analyzer,
		trainer:    trainer,
		metrics:    metrics,
		logger:     logger,
	}
}

type PredictionResponse struct {
	FraudProbability    float64                    `json:"fraud_probability"`
	FraudScore          float64                    `json:"fraud_score"`
	RiskLevel           domain.RiskLevel           `json:"risk_level"`
	ShouldBlock         bool                       `json:"should_block"`
	ModelVersion        string                     `json:"model_version"`
	ShapValues          map[string]float64         `json:"shap_values,omitempty"`
	AIAnalysis          *string                    `json:"ai_analysis"`
	AMLAnalysis         *string                    `json:"aml_analysis"`
	Recommendation      *string                    `json:"recommendation"`
	AnalysisFingerprint *string                    `json:"analysis_fingerprint"`
	TopRiskFactors      []domain.AttributionFactor `json:"top_risk_factors"`
}

type BatchPredictionRequest struct {
	Transactions   []domain.TransactionFeatures `json:"transactions"`
	SkipAIAnalysis bool                         `json:"skip_ai_analysis"`
}

type ThresholdUpdateRequest struct {
	Threshold float64 `json:"threshold"`
}

type ThresholdResponse struct {
	OldThreshold float64 `json:"old_threshold"`
	NewThreshold float64 `json:"new_threshold"`
	Message      string  `json:"message"`
}

type ModelInfoResponse struct {
	Version           string             `json:"version"`
	ModelType         string             `json:"model_type"`
	OptimalThreshold  float64            `json:"optimal_threshold"`
	CreatedAt         time.Time          `json:"created_at"`
	NumFeatures       int                `json:"num_features"`
	FeatureNames      []string           `json:"feature_names"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	Metrics           map[string]any     `json:"metrics,omitempty"`
}

type BaselineResponse struct {
	Message         string   `json:"message"`
	FeaturesTracked []string `json:"features_tracked"`
	SampleSize      int      `json:"sample_size"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", h.PredictHandler)
	mux.HandleFunc("POST /predict/batch", h.PredictBatchHandler)
	mux.HandleFunc("GET /threshold", h.GetThresholdHandler)
	mux.HandleFunc("POST /threshold", h.UpdateThresholdHandler)
	mux.HandleFunc("POST /drift/set-baseline", h.SetBaselineHandler)
	mux.HandleFunc("POST /drift/check", h.CheckDriftHandler)
	mux.HandleFunc("GET /model-info", h.ModelInfoHandler)
	mux.HandleFunc("POST /reload-model", h.ReloadModelHandler)
	mux.HandleFunc("POST /train", h.TrainHandler)
	mux.HandleFunc("GET /health", h.HealthHandler)
}

func (h *APIHandler) PredictHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var tx domain.TransactionFeatures
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	prediction, err := h.engine.Predict(r.Context(), &tx)
	if err != nil {
		h.metrics.RecordPredictionError(time.Since(start))
		h.sendScoringError(w, err)
		return
	}

	threshold := h.thresholds.Get()
	level, shouldBlock := scoring.Classify(prediction.FraudProbability, threshold)
	fraudScore := prediction.FraudProbability * 100
	topFactors := scoring.TopFactors(prediction.Attribution, prediction.FeatureNames, scoring.TopFactorsSingle)

	response := PredictionResponse{
		FraudProbability: prediction.FraudProbability,
		FraudScore:       fraudScore,
		RiskLevel:        level,
		ShouldBlock:      shouldBlock,
		ModelVersion:     prediction.ModelVersion,
		ShapValues:       prediction.Attribution,
		TopRiskFactors:   topFactors,
	}

	// Narrative analysis is advisory: a failure degrades to null fields.
	if result, err := h.analyzer.Analyze(r.Context(), &tx, prediction.FraudProbability, level, topFactors); err != nil {
		h.logger.Warn("Narrative analysis failed", slog.String("error", err.Error()))
	} else if result != nil {
		response.AIAnalysis = &result.FraudAnalysis
		response.AMLAnalysis = &result.AMLAnalysis
		response.Recommendation = &result.Recommendation
		response.AnalysisFingerprint = &result.Fingerprint
	}

	h.metrics.RecordPrediction(level, fraudScore, shouldBlock, time.Since(start))
	h.sendJSON(w, response, http.StatusOK)

	h.logger.Info("Transaction scored",
		slog.Float64("probability", prediction.FraudProbability),
		slog.String("risk_level", string(level)),
		slog.Bool("should_block", shouldBlock))
}

func (h *APIHandler) PredictBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req BatchPredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if !h.registry.Loaded() {
		h.sendError(w, "Model not loaded", http.StatusServiceUnavailable, "MODEL_UNAVAILABLE")
		return
	}

	result := h.batch.ScoreBatch(r.Context(), req.Transactions)
	h.sendJSON(w, result, http.StatusOK)

	h.logger.Info("Batch scored",
		slog.Int("total", result.Total),
		slog.Int("blocked", result.BlockedCount))
}

func (h *APIHandler) GetThresholdHandler(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Loaded() {
		h.sendError(w, "Model not loaded", http.StatusServiceUnavailable, "MODEL_UNAVAILABLE")
		return
	}

	h.sendJSON(w, map[string]any{
		"threshold":   h.thresholds.Get(),
		"description": "Transactions with fraud_probability >= threshold will be blocked",
	}, http.StatusOK)
}

func (h *APIHandler) UpdateThresholdHandler(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Loaded() {
		h.sendError(w, "Model not loaded", http.StatusServiceUnavailable, "MODEL_UNAVAILABLE")
		return
	}

	var req ThresholdUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	old, err := h.thresholds.Set(r.Context(), req.Threshold)
	if err != nil {
		if errors.Is(err, scoring.ErrInvalidThreshold) {
			h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_THRESHOLD")
			return
		}
		h.sendError(w, "Failed to persist threshold", http.StatusInternalServerError, "PERSIST_ERROR")
		return
	}

	h.metrics.SetThreshold(req.Threshold)

	h.sendJSON(w, ThresholdResponse{
		OldThreshold: old,
		NewThreshold: req.Threshold,
		Message:      "Threshold updated",
	}, http.StatusOK)
}

func (h *APIHandler) SetBaselineHandler(w http.ResponseWriter, r *http.Request) {
	var transactions []domain.TransactionFeatures
	if err := json.NewDecoder(r.Body).Decode(&transactions); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	tracked, err := h.monitor.SetBaseline(r.Context(), transactions)
	if err != nil {
		if errors.Is(err, drift.ErrInsufficientBaselineSamples) {
			h.sendError(w, err.Error(), http.StatusBadRequest, "INSUFFICIENT_SAMPLES")
			return
		}
		h.sendError(w, "Failed to set baseline", http.StatusInternalServerError, "PERSIST_ERROR")
		return
	}

	h.sendJSON(w, BaselineResponse{
		Message:         "Baseline set successfully",
		FeaturesTracked: tracked,
		SampleSize:      len(transactions),
	}, http.StatusOK)
}

func (h *APIHandler) CheckDriftHandler(w http.ResponseWriter, r *http.Request) {
	var transactions []domain.TransactionFeatures
	if err := json.NewDecoder(r.Body).Decode(&transactions); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	report, err := h.monitor.CheckDrift(r.Context(), transactions)
	if err != nil {
		switch {
		case errors.Is(err, drift.ErrNoBaseline):
			h.sendError(w, "No baseline set. Call /drift/set-baseline first", http.StatusBadRequest, "NO_BASELINE")
		case errors.Is(err, drift.ErrInsufficientDriftSamples):
			h.sendError(w, err.Error(), http.StatusBadRequest, "INSUFFICIENT_SAMPLES")
		default:
			h.sendError(w, "Drift check failed", http.StatusInternalServerError, "SERVER_ERROR")
		}
		return
	}

	h.metrics.SetDriftScore(report.DriftScore)
	h.sendJSON(w, report, http.StatusOK)

	if report.DriftDetected {
		h.logger.Warn("Data drift detected",
			slog.Float64("drift_score", report.DriftScore),
			slog.Int("features_with_drift", len(report.FeaturesWithDrift)))
	}
}

func (h *APIHandler) ModelInfoHandler(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.registry.Bundle()
	if err != nil {
		h.sendError(w, "Model not loaded", http.StatusServiceUnavailable, "MODEL_UNAVAILABLE")
		return
	}

	trainingMetrics, err := model.LoadTrainingMetrics(h.registry.Dir())
	if err != nil {
		h.logger.Warn("Failed to read training metrics", slog.String("error", err.Error()))
	}

	meta := bundle.Metadata
	h.sendJSON(w, ModelInfoResponse{
		Version:           meta.Version,
		ModelType:         meta.ModelType,
		OptimalThreshold:  h.thresholds.Get(),
		CreatedAt:         meta.CreatedAt,
		NumFeatures:       len(meta.FeatureNames),
		FeatureNames:      meta.FeatureNames,
		FeatureImportance: normalizedImportance(bundle),
		Metrics:           trainingMetrics,
	}, http.StatusOK)
}

func (h *APIHandler) ReloadModelHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(); err != nil {
		h.metrics.SetModelLoaded(h.registry.Loaded())
		h.sendError(w, "Failed to reload model: "+err.Error(), http.StatusInternalServerError, "RELOAD_ERROR")
		return
	}

	h.metrics.SetModelLoaded(true)

	bundle, _ := h.registry.Bundle()
	h.sendJSON(w, map[string]any{
		"status":  "success",
		"message": "Model reloaded",
		"version": bundle.Metadata.Version,
	}, http.StatusOK)
}

func (h *APIHandler) TrainHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.trainer.Run(r.Context())
	if err != nil {
		h.logger.Error("Training trigger failed", slog.String("error", err.Error()))
		h.sendError(w, "Training error: "+err.Error(), http.StatusInternalServerError, "TRAINING_ERROR")
		return
	}

	if result.Status == "success" {
		h.metrics.SetModelLoaded(true)
	}
	h.sendJSON(w, result, http.StatusOK)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":           "healthy",
		"model_loaded":     h.registry.Loaded(),
		"openai_available": h.analyzer.Available(),
	}
	if bundle, err := h.registry.Bundle(); err == nil {
		response["model_version"] = bundle.Metadata.Version
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) sendScoringError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
	case errors.Is(err, model.ErrModelUnavailable):
		h.sendError(w, "Model not loaded", http.StatusServiceUnavailable, "MODEL_UNAVAILABLE")
	default:
		h.sendError(w, "Prediction error: "+err.Error(), http.StatusInternalServerError, "INFERENCE_ERROR")
	}
}

// normalizedImportance returns per-feature importance as percentages. It
// prefers the importances exported with the primary classifier, falling back
// to its absolute weights.
func normalizedImportance(bundle *model.ArtifactBundle) map[string]float64 {
	importance := make(map[string]float64, len(bundle.Metadata.FeatureNames))
	if len(bundle.Primary.FeatureImportance) > 0 {
		for name, v := range bundle.Primary.FeatureImportance {
			importance[name] = v
		}
	} else {
		for i, name := range bundle.Metadata.FeatureNames {
			importance[name] = math.Abs(bundle.Primary.Weights[i])
		}
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for name, v := range importance {
			importance[name] = math.Round(v/total*100*100) / 100
		}
	}
	return importance
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}
