package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_DeliveryError(t *testing.T) {
	assert.Equal(t, ErrorClassTransient, Classify(NewTransient(ErrCodeNetwork, "connection refused")))
	assert.Equal(t, ErrorClassPermanent, Classify(NewPermanent(ErrCodeValidation, "malformed payload")))
}

func TestClassify_WrappedDeliveryError(t *testing.T) {
	inner := NewPermanent(ErrCodeUnauthorized, "permission denied")
	wrapped := fmt.Errorf("send failed: %w", inner)

	assert.Equal(t, ErrorClassPermanent, Classify(wrapped))
	assert.True(t, IsPermanent(wrapped))
	assert.False(t, IsTransient(wrapped))
}

func TestClassify_ContextErrors(t *testing.T) {
	assert.Equal(t, ErrorClassTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, ErrorClassTransient, Classify(context.Canceled))
}

func TestClassify_UnknownErrorDefaultsToTransient(t *testing.T) {
	// Conservative default: prefer retrying over silently dropping a message.
	assert.Equal(t, ErrorClassTransient, Classify(errors.New("something unexpected")))
	assert.True(t, IsTransient(errors.New("something unexpected")))
}

func TestDeliveryError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := WrapTransient(cause, ErrCodeNetwork, "request failed")

	assert.Contains(t, err.Error(), "NETWORK")
	assert.Contains(t, err.Error(), "request failed")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, CodeOf(NewTransient(ErrCodeTimeout, "timed out")))
	assert.Equal(t, ErrCodeNetwork, CodeOf(errors.New("unclassified")))
}
