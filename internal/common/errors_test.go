package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("resolve: %w", ErrOutOfRange), KindOutOfRange},
		{fmt.Errorf("rank: %w", ErrInvalidDisplayCount), KindInvalidDisplayCount},
		{fmt.Errorf("predict: %w", ErrModelInference), KindModelInference},
		{fmt.Errorf("lookup: %w", ErrThresholdNotFound), KindThresholdNotFound},
		{fmt.Errorf("load: %w", ErrStartupLoad), KindStartupLoad},
		{fmt.Errorf("attribute: %w", context.Canceled), KindCanceled},
		{context.DeadlineExceeded, KindCanceled},
		{errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
