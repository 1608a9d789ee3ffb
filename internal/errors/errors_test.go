package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Is_MatchesByKind(t *testing.T) {
	err := NotFound("item missing")
	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.False(t, errors.Is(err, &Error{Kind: KindConflict}))
}

func TestError_Unwrap_ReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Internal("ingest failed", cause)
	require.ErrorIs(t, err, cause)
}

func TestError_WithDetail_Chains(t *testing.T) {
	err := Validation("missing field").WithDetail("field", "title")
	assert.Equal(t, "title", err.Details["field"])
}

func TestKindOf_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindConflict, KindOf(Conflict("dup")))
}
