package common

import (
	"context"
	"errors"
)

// Error kinds shared by every layer. Callers wrap them with fmt.Errorf("%w")
// and the transport recovers the kind with errors.Is.
var (
	// ErrOutOfRange reports a row index outside [0, row count).
	ErrOutOfRange = errors.New("row index out of range")

	// ErrInvalidDisplayCount reports a negative display count.
	ErrInvalidDisplayCount = errors.New("invalid display count")

	// ErrModelInference reports a row the model or attribution engine rejected.
	ErrModelInference = errors.New("model inference failed")

	// ErrThresholdNotFound reports a model identity missing from the threshold mapping.
	ErrThresholdNotFound = errors.New("threshold not found")

	// ErrStartupLoad reports a dataset, model or mapping that could not be loaded.
	ErrStartupLoad = errors.New("startup load failed")
)

// Common error messages
const (
	ErrMsgModelPathRequired   = "model path is required"
	ErrMsgDatasetPathRequired = "dataset path is required"
	ErrMsgDataPathRequired    = "data path is required for the bolt dataset source"
	ErrMsgThresholdFileReq    = "threshold file is required for the lookup policy"
)

// Error kind labels used in metrics and logs.
const (
	KindOutOfRange          = "out_of_range"
	KindInvalidDisplayCount = "invalid_display_count"
	KindModelInference      = "model_inference"
	KindThresholdNotFound   = "threshold_not_found"
	KindStartupLoad         = "startup_load"
	KindCanceled            = "canceled"
	KindInternal            = "internal"
)

// KindOf returns the label of the error kind err wraps.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrOutOfRange):
		return KindOutOfRange
	case errors.Is(err, ErrInvalidDisplayCount):
		return KindInvalidDisplayCount
	case errors.Is(err, ErrModelInference):
		return KindModelInference
	case errors.Is(err, ErrThresholdNotFound):
		return KindThresholdNotFound
	case errors.Is(err, ErrStartupLoad):
		return KindStartupLoad
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
