package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError_IsSentinel(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		sentinel error
	}{
		{KindMalformedInput, ErrMalformedInput},
		{KindMissingField, ErrMissingField},
		{KindConflictingSerializer, ErrConflictingSerializer},
		{KindInvalidHandlerChain, ErrInvalidHandlerChain},
		{KindInvalidArgument, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewConfigError(tt.kind, "Field", "boom")
			wrapped := fmt.Errorf("outer: %w", err)

			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.True(t, IsKind(wrapped, tt.kind))
		})
	}
}

func TestConfigError_Message(t *testing.T) {
	cause := errors.New("bad scheme")
	err := &ConfigError{Kind: KindInvalidArgument, Field: "Endpoint", Message: "not a URI", Err: cause}

	assert.Equal(t, "Endpoint: not a URI: bad scheme", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	bare := &ConfigError{Kind: KindMissingField}
	assert.Equal(t, "missing required field", bare.Error())
}

func TestMissingEndpoint_IsMissingField(t *testing.T) {
	assert.ErrorIs(t, ErrMissingEndpoint, ErrMissingField)
	assert.Equal(t, KindMissingField, KindOf(ErrMissingEndpoint))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}
