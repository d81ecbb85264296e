package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	wrapped := ErrStoreUnavailable.Wrap(errors.New("dial tcp: refused"))

	assert.Equal(t, ErrStoreUnavailable.Code, wrapped.Code)
	assert.Contains(t, wrapped.Msg, "dial tcp: refused")
	assert.ErrorIs(t, wrapped, ErrStoreUnavailable)
	assert.NotErrorIs(t, wrapped, ErrConvNotFound)
	assert.Same(t, ErrNotParticipant, ErrNotParticipant.Wrap(nil))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))
	assert.Equal(t, ErrConvNotFound, From(fmt.Errorf("send: %w", ErrConvNotFound)))
	assert.Equal(t, ErrInternalServer, From(errors.New("boom")))
}
