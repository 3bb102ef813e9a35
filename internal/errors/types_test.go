package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagesmithErrorError(t *testing.T) {
	testCases := []struct {
		name     string
		err      *PagesmithError
		expected string
	}{
		{
			name:     "code and message",
			err:      NewValidationError("ERR_X", "bad input"),
			expected: "[ERR_X] bad input",
		},
		{
			name:     "with component",
			err:      NewValidationError("ERR_X", "bad input").WithComponent("tailwind"),
			expected: "[ERR_X] component:tailwind bad input",
		},
		{
			name:     "with cause",
			err:      NewInternalError("ERR_Y", "boom", fmt.Errorf("inner")),
			expected: "[ERR_Y] boom: inner",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestPagesmithErrorIs(t *testing.T) {
	err := fmt.Errorf("scheduling: %w", ErrCircularDependency([]string{"a", "b", "a"}))

	assert.True(t, errors.Is(err, ErrCircularDependency(nil)))
	assert.False(t, errors.Is(err, ErrUnknownBlockType("hero")))
	assert.True(t, IsCircularDependency(err))
	assert.Equal(t, []string{"a", "b", "a"}, CyclePath(err))
}

func TestHasCodeWalksCauses(t *testing.T) {
	inner := ErrInitializationTimeout("alpine", 10*time.Second)
	outer := ErrInitFailed("alpine", inner)

	assert.True(t, HasCode(outer, ErrCodeInitFailed))
	assert.True(t, HasCode(outer, ErrCodeInitTimeout))
	assert.True(t, IsTimeout(outer))
	assert.False(t, HasCode(outer, ErrCodeTemplateStage))
	assert.False(t, HasCode(nil, ErrCodeInitFailed))
	assert.False(t, HasCode(fmt.Errorf("plain"), ErrCodeInitFailed))
}

func TestBlockErrorsCarryContext(t *testing.T) {
	err := ErrNotAContainer("b1", "text")

	assert.Equal(t, ErrorTypeBlock, err.Type)
	assert.Equal(t, "b1", err.Context["block_id"])
	assert.Equal(t, "text", err.Context["type_id"])
	assert.True(t, IsRecoverable(err))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeConfig, ErrCodeConfigInvalid, "x"))

	base := ErrUnknownBlockType("hero").WithComponent("decoder")
	wrapped := WrapValidation(base, ErrCodeValidationFailed, "tree rejected")
	require.NotNil(t, wrapped)
	assert.Equal(t, "decoder", wrapped.Component)
	assert.True(t, HasCode(wrapped, ErrCodeUnknownBlockType))

	plain := WrapConfig(fmt.Errorf("bad yaml"), "load failed")
	assert.Equal(t, ErrorTypeConfig, plain.Type)
	assert.False(t, plain.Recoverable)
}

func TestFromPanic(t *testing.T) {
	err := FromPanic("stage:template", "kaboom")
	assert.Equal(t, ErrCodeInternalError, err.Code)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, "stage:template", err.Component)
}

type recordingLogger struct {
	warns  int
	errors int
}

func (r *recordingLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	r.errors++
}

func (r *recordingLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	r.warns++
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	handler := NewErrorHandler(logger)
	ctx := context.Background()

	handler.Handle(ctx, nil)
	handler.Handle(ctx, ErrTemplateStage(fmt.Errorf("parse")))
	handler.Handle(ctx, ErrCircularDependency([]string{"a", "a"}))
	handler.Handle(ctx, fmt.Errorf("generic"))

	assert.Equal(t, 1, logger.warns)
	assert.Equal(t, 2, logger.errors)
}
