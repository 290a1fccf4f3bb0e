package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"loanscore/internal/common"
	"loanscore/internal/dataset"
	"loanscore/internal/scoring"
)

// Error codes carried in the error envelope.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeOutOfRange          = "OUT_OF_RANGE"
	CodeInvalidDisplayCount = "INVALID_DISPLAY_COUNT"
	CodeModelInference      = "MODEL_INFERENCE_ERROR"
	CodeThresholdNotFound   = "THRESHOLD_NOT_FOUND"
	CodeRequestCanceled     = "REQUEST_CANCELED"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
)

// Number is a float that encodes NaN and infinities as JSON null and decodes
// null back to NaN.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (n *Number) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Number(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// PredictRequest is the body of POST /api/predict and of each stream message.
// Both fields are required.
type PredictRequest struct {
	SelectedIndex  *int `json:"selected_index"`
	ShapMaxDisplay *int `json:"shap_max_display"`
}

// PredictResponse is the explained decision for one applicant.
type PredictResponse struct {
	TopFeatures       []string  `json:"top_features"`
	TopFeaturesValues []Number  `json:"top_features_values"`
	TopShapValues     []float64 `json:"top_shap_values"`
	PredProba         float64   `json:"pred_proba"`
	Acceptance        float64   `json:"acceptance"`
	PredBinary        int       `json:"pred_binary"`
}

// ImportanceRequest is the body of POST /api/importance.
type ImportanceRequest struct {
	MaxDisplay *int `json:"max_display"`
}

// ImportanceResponse holds aligned names and importances, most important first.
type ImportanceResponse struct {
	Features    []string  `json:"features"`
	Importances []float64 `json:"importances"`
}

// RowResponse is one applicant of the dataset. Labels holds the category of
// each categorical feature.
type RowResponse struct {
	Index    int               `json:"index"`
	Features []string          `json:"features"`
	Values   map[string]Number `json:"values"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Rows   int    `json:"rows"`
}

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewPredictResponse converts an explained decision to its wire shape.
func NewPredictResponse(res *scoring.PredictionResult) PredictResponse {
	resp := PredictResponse{
		TopFeatures:       make([]string, len(res.TopFeatures)),
		TopFeaturesValues: make([]Number, len(res.TopFeatures)),
		TopShapValues:     make([]float64, len(res.TopFeatures)),
		PredProba:         res.Probability,
		Acceptance:        res.Threshold,
		PredBinary:        int(res.Decision),
	}
	for i, f := range res.TopFeatures {
		resp.TopFeatures[i] = f.Feature
		resp.TopFeaturesValues[i] = Number(f.Value)
		resp.TopShapValues[i] = f.Attribution
	}
	return resp
}

// NewRowResponse converts a row to its wire shape. label reports the category
// of a categorical value.
func NewRowResponse(row dataset.Row, label func(column string, value float64) (string, bool)) RowResponse {
	resp := RowResponse{
		Index:    row.Index,
		Features: row.Columns,
		Values:   make(map[string]Number, len(row.Columns)),
	}
	for i, name := range row.Columns {
		resp.Values[name] = Number(row.Values[i])
		if l, ok := label(name, row.Values[i]); ok {
			if resp.Labels == nil {
				resp.Labels = make(map[string]string)
			}
			resp.Labels[name] = l
		}
	}
	return resp
}

func newErrorResponse(code, message, requestID string) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// errorStatus maps an error kind to its status code and envelope code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrOutOfRange):
		return http.StatusBadRequest, CodeOutOfRange
	case errors.Is(err, common.ErrInvalidDisplayCount):
		return http.StatusBadRequest, CodeInvalidDisplayCount
	case errors.Is(err, common.ErrModelInference):
		return http.StatusInternalServerError, CodeModelInference
	case errors.Is(err, common.ErrThresholdNotFound):
		return http.StatusInternalServerError, CodeThresholdNotFound
	case common.KindOf(err) == common.KindCanceled:
		return http.StatusServiceUnavailable, CodeRequestCanceled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeJSON encodes v before writing the status, so an unencodable body turns
// into a 500 envelope instead of a truncated reply.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Int("status", status).Msg("Failed to encode response")
		status = http.StatusInternalServerError
		data, _ = json.Marshal(newErrorResponse(CodeInternal, "failed to encode response", ""))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	writeJSON(w, status, newErrorResponse(code, err.Error(), requestIDFrom(r.Context())))
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusBadRequest, newErrorResponse(CodeInvalidRequest, message, requestIDFrom(r.Context())))
}
