package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ExternalService("embed_batch", cause)

	assert.ErrorIs(t, err, ErrExternalService)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "embed_batch")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestError_Refinements(t *testing.T) {
	err := New(ErrEmbeddingService, "embed", "status 500", nil)
	assert.ErrorIs(t, err, ErrEmbeddingService)
	assert.ErrorIs(t, err, ErrExternalService)

	err = New(ErrEmptyContent, "split", "", nil)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("respond: %w", PayloadTooLarge("assemble", "inline files exceed ceiling"))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("op", "bad")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidFilter("op", "bad")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("op", "missing")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Conflict("op", "dup")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(ExternalService("op", errors.New("x"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestPublicMessage_HidesDetail(t *testing.T) {
	err := ExternalService("chat_completion", errors.New("401 invalid api key sk-123"))
	msg := PublicMessage(err)
	assert.NotContains(t, msg, "sk-123")
	assert.NotContains(t, msg, "401")
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("secret detail")))
}
