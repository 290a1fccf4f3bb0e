package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"loanscore/internal/scoring"
)

const maxBodyBytes = 1 << 20

var errMissingField = errors.New("missing required field")

func (req PredictRequest) toScoring() (scoring.PredictRequest, error) {
	if req.SelectedIndex == nil {
		return scoring.PredictRequest{}, fmt.Errorf("%w: selected_index", errMissingField)
	}
	if req.ShapMaxDisplay == nil {
		return scoring.PredictRequest{}, fmt.Errorf("%w: shap_max_display", errMissingField)
	}
	return scoring.PredictRequest{
		SelectedIndex:  *req.SelectedIndex,
		ShapMaxDisplay: *req.ShapMaxDisplay,
	}, nil
}

func (req ImportanceRequest) toScoring() (scoring.ImportanceRequest, error) {
	if req.MaxDisplay == nil {
		return scoring.ImportanceRequest{}, fmt.Errorf("%w: max_display", errMissingField)
	}
	return scoring.ImportanceRequest{MaxDisplay: *req.MaxDisplay}, nil
}

// decodePredict parses a predict request from raw JSON.
func decodePredict(data []byte) (scoring.PredictRequest, error) {
	var req PredictRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return scoring.PredictRequest{}, fmt.Errorf("invalid request body: %w", err)
	}
	return req.toScoring()
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return data, nil
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	req, err := decodePredict(data)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.service.Predict(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewPredictResponse(res))
}

func (s *Server) handleImportance(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	var body ImportanceRequest
	if err := json.Unmarshal(data, &body); err != nil {
		writeBadRequest(w, r, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	req, err := body.toScoring()
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.service.Importance(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportanceResponse{
		Features:    res.Features,
		Importances: res.Importances,
	})
}

func (s *Server) handleRow(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeBadRequest(w, r, fmt.Sprintf("invalid row index %q", mux.Vars(r)["index"]))
		return
	}

	row, err := s.service.Row(index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRowResponse(row, s.service.Category))
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Info())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	info := s.service.Info()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Model:  info.Identity,
		Rows:   info.Rows,
	})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, newErrorResponse(CodeNotFound,
		fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path), requestIDFrom(r.Context())))
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, newErrorResponse(CodeInvalidRequest,
		fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path), requestIDFrom(r.Context())))
}
