package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	nf := NotFound("ticket")
	wrapped := fmt.Errorf("loading: %w", nf)

	got := From(wrapped)
	assert.Equal(t, http.StatusNotFound, got.Status)
	assert.Equal(t, "ticket not found", got.Message)

	raw := errors.New("connection reset")
	internal := From(raw)
	assert.Equal(t, http.StatusInternalServerError, internal.Status)
	assert.Equal(t, CodeInternal, internal.Code)
	assert.True(t, errors.Is(internal, raw))
	assert.NotContains(t, internal.Message, "connection reset")
}

func TestWithDetails(t *testing.T) {
	base := Validation("invalid input")
	detailed := base.WithDetails("title is required")

	assert.Empty(t, base.Details)
	assert.Equal(t, "title is required", detailed.Details)
	assert.Equal(t, "VALIDATION_ERROR: invalid input", detailed.Error())
}
