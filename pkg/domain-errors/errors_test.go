package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeUnavailable, "cache unavailable")
		require.Error(t, err)
		assert.True(t, Is(err, cause))
		assert.Equal(t, "cache unavailable: connection reset", err.Error())
	})
}

func TestHasCode(t *testing.T) {
	inner := New(CodeNotFound, "report not found")
	outer := Wrap(inner, CodeInternal, "load report")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(outer, CodeValidation))
	assert.False(t, HasCode(fmt.Errorf("plain: %w", errors.New("x")), CodeInternal))
	assert.True(t, HasCode(fmt.Errorf("context: %w", inner), CodeNotFound))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(New(CodeValidation, "bad")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
