// Package client is a typed HTTP client for the scoring API, used by the
// dashboard side and by loanctl.
package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"loanscore/internal/api"
	"loanscore/internal/common"
	"loanscore/internal/scoring"
)

// Client talks to one scoring API base URL.
type Client struct {
	base string
	rest *resty.Client
}

// New creates a client. A non-positive timeout falls back to 5s.
func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// APIError is a failure reported by the API in its error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scoring api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Is maps envelope codes back to the error kinds of the service, so callers
// can use errors.Is(err, common.ErrOutOfRange) on both sides of the wire.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case api.CodeOutOfRange:
		return target == common.ErrOutOfRange
	case api.CodeInvalidDisplayCount:
		return target == common.ErrInvalidDisplayCount
	case api.CodeModelInference:
		return target == common.ErrModelInference
	case api.CodeThresholdNotFound:
		return target == common.ErrThresholdNotFound
	}
	return false
}

// Predict explains the decision for one applicant.
func (c *Client) Predict(ctx context.Context, index, display int) (*api.PredictResponse, error) {
	out := &api.PredictResponse{}
	body := api.PredictRequest{SelectedIndex: &index, ShapMaxDisplay: &display}
	if err := c.post(ctx, "/api/predict", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Importance returns the n most important features of the served model.
func (c *Client) Importance(ctx context.Context, n int) (*api.ImportanceResponse, error) {
	out := &api.ImportanceResponse{}
	if err := c.post(ctx, "/api/importance", api.ImportanceRequest{MaxDisplay: &n}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Row fetches one applicant.
func (c *Client) Row(ctx context.Context, index int) (*api.RowResponse, error) {
	out := &api.RowResponse{}
	if err := c.get(ctx, "/api/rows/"+strconv.Itoa(index), out); err != nil {
		return nil, err
	}
	return out, nil
}

// Model describes the served model.
func (c *Client) Model(ctx context.Context) (*scoring.ModelInfo, error) {
	out := &scoring.ModelInfo{}
	if err := c.get(ctx, "/api/model", out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	out := &api.HealthResponse{}
	if err := c.get(ctx, "/health", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&api.ErrorResponse{}).
		Get(c.base + path)
	return checkResponse(resp, err)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&api.ErrorResponse{}).
		Post(c.base + path)
	return checkResponse(resp, err)
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	if envelope, ok := resp.Error().(*api.ErrorResponse); ok && envelope.Error.Code != "" {
		return &APIError{
			Status:    resp.StatusCode(),
			Code:      envelope.Error.Code,
			Message:   envelope.Error.Message,
			RequestID: envelope.Error.RequestID,
		}
	}
	return &APIError{
		Status:  resp.StatusCode(),
		Code:    strconv.Itoa(resp.StatusCode()),
		Message: strings.TrimSpace(resp.String()),
	}
}

// IsAPIError reports whether err came from the API's error envelope.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
