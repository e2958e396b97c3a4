package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("socket closed")
	err := Wrap(CodeDependency, cause, "remote cart unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeDependency, err.Code())
	assert.Equal(t, "DEPENDENCY_ERROR: remote cart unavailable", err.Error())
}

func TestAsAndIsFollowWrapping(t *testing.T) {
	typed := New(CodeConflict, "Product already in wishlist")
	wrapped := fmt.Errorf("toggle: %w", typed)

	require.NotNil(t, As(wrapped))
	assert.True(t, Is(wrapped, CodeConflict))
	assert.False(t, Is(wrapped, CodeNotFound))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
	assert.Equal(t, http.StatusConflict, MetadataFor(CodeConflict).HTTPStatus)
	assert.Equal(t, http.StatusServiceUnavailable, MetadataFor(CodeDependency).HTTPStatus)
	assert.Equal(t, http.StatusBadRequest, MetadataFor(CodeUnsupported).HTTPStatus)
}

func TestRetryableCodes(t *testing.T) {
	assert.True(t, MetadataFor(CodeDependency).Retryable)
	assert.True(t, MetadataFor(CodeRateLimit).Retryable)
	assert.False(t, MetadataFor(CodeConflict).Retryable)
	assert.False(t, MetadataFor(CodeInternal).Retryable)
}

func TestDumpListsAggregatedCauses(t *testing.T) {
	agg := multierr.Combine(stdErrors.New("entry 1"), stdErrors.New("entry 2"))
	err := Wrap(CodeDependency, agg, "clear failed")

	dump := Dump(err)
	assert.Equal(t, CodeDependency, dump.Code)
	assert.Equal(t, []string{"entry 1", "entry 2"}, dump.Causes)
	assert.NotEmpty(t, dump.Chain)
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
