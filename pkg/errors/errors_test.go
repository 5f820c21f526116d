package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsIdentity(t *testing.T) {
	clone := Clone(ErrStageLocked, "stage 0 is locked")
	require.NotSame(t, ErrStageLocked, clone)
	assert.True(t, errors.Is(clone, ErrStageLocked))
	assert.Equal(t, "stage 0 is locked", clone.Message)
	assert.False(t, errors.Is(clone, ErrProtocolExhausted))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)

	typed := Wrap(fmt.Errorf("dial"), ErrUnavailable.Code, ErrUnavailable.Status, "backend down")
	wrapped := fmt.Errorf("outer: %w", typed)
	assert.Same(t, typed, FromError(wrapped))
	assert.Nil(t, FromError(nil))
}
