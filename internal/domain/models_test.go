package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_IsValid(t *testing.T) {
	for _, p := range AllProviders {
		assert.True(t, p.IsValid(), p)
	}
	assert.False(t, Provider("isbn13").IsValid())
	assert.False(t, Provider("").IsValid())
}

func TestProvider_RequiresNetwork(t *testing.T) {
	assert.False(t, ProviderRaw.RequiresNetwork())
	assert.True(t, ProviderDOI.RequiresNetwork())
	assert.True(t, ProviderURL.RequiresNetwork())
}

func TestRunState_Next(t *testing.T) {
	states := []RunState{RunStateInit}
	for s := RunStateInit; !s.IsTerminal(); s = s.Next() {
		states = append(states, s.Next())
	}

	assert.Equal(t, []RunState{
		RunStateInit,
		RunStateParsing,
		RunStateFetching,
		RunStateOverlaying,
		RunStateValidating,
		RunStateKeyAssignment,
		RunStateDone,
	}, states)
	assert.Equal(t, RunStateDone, RunStateDone.Next())
}

func TestExternalAPIError_Kinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "not found", status: http.StatusNotFound, want: ErrIdentifierNotFound},
		{name: "gone", status: http.StatusGone, want: ErrIdentifierNotFound},
		{name: "bad request", status: http.StatusBadRequest, want: ErrIdentifierNotFound},
		{name: "server error", status: http.StatusBadGateway, want: ErrProviderUnavailable},
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrProviderUnavailable},
		{name: "no response", status: 0, want: ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewExternalAPIError("DOI", tt.status, "body", nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("forbidden has no kind", func(t *testing.T) {
		err := NewExternalAPIError("DOI", http.StatusForbidden, "denied", nil)
		assert.False(t, errors.Is(err, ErrIdentifierNotFound))
		assert.False(t, errors.Is(err, ErrProviderUnavailable))
	})

	t.Run("cause is preserved", func(t *testing.T) {
		err := NewExternalAPIError("arXiv", 0, "", context.DeadlineExceeded)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, IsRetryable(err))
		assert.Contains(t, err.Error(), "arXiv request failed")
	})
}

func TestTypedErrors_Unwrap(t *testing.T) {
	cause := errors.New("unexpected EOF")

	assert.ErrorIs(t, NewIdentifierError("foo:bar", "unknown prefix"), ErrInvalidIdentifier)
	assert.ErrorIs(t, NewNotFoundError("pmid", "1"), ErrIdentifierNotFound)
	assert.ErrorIs(t, NewMalformedResponseError("DOI", "10.1/x", cause), ErrMalformedResponse)
	assert.ErrorIs(t, NewMalformedResponseError("DOI", "10.1/x", cause), cause)
	assert.ErrorIs(t, &InvalidItemError{ID: "x", Problems: []string{"title: must be a string"}}, ErrInvalidCSLItem)
	assert.ErrorIs(t, &CacheCorruptionError{Fingerprint: "ab", Cause: cause}, ErrCacheCorruption)
	assert.ErrorIs(t, &OverlayParseError{Path: "m.json", Entry: 2, Cause: cause}, ErrManualOverlayParse)
	assert.ErrorIs(t, NewValidationError("cache.location", "required"), ErrInvalidInput)
}

func TestRunError(t *testing.T) {
	runErr := &RunError{
		Total: 3,
		Failures: []*Failure{
			{Citation: "pmid:999999999999", Err: NewNotFoundError("pmid", "999999999999")},
			{Citation: "foo:bar", Err: NewIdentifierError("foo:bar", "unknown prefix")},
		},
	}

	assert.ErrorIs(t, runErr, ErrIdentifierNotFound)
	assert.ErrorIs(t, runErr, ErrInvalidIdentifier)
	assert.False(t, errors.Is(runErr, ErrProviderUnavailable))
	assert.Contains(t, runErr.Error(), "2 of 3 citations failed")

	var failure *Failure
	require.True(t, errors.As(runErr, &failure))
	assert.Equal(t, "pmid:999999999999", failure.Citation)

	wrapped := fmt.Errorf("resolve: %w", runErr)
	var got *RunError
	require.True(t, errors.As(wrapped, &got))
	assert.Len(t, got.Failures, 2)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "none", Kind(nil))
	assert.Equal(t, "not_found", Kind(NewNotFoundError("doi", "10.1/x")))
	assert.Equal(t, "unavailable", Kind(NewExternalAPIError("DOI", 503, "", nil)))
	assert.Equal(t, "invalid_identifier", Kind(NewIdentifierError("x", "y")))
	assert.Equal(t, "malformed_response", Kind(NewMalformedResponseError("DOI", "x", nil)))
	assert.Equal(t, "invalid_csl", Kind(&InvalidItemError{ID: "x"}))
	assert.Equal(t, "cancelled", Kind(fmt.Errorf("fetch: %w", ErrCancelled)))
	assert.Equal(t, "other", Kind(errors.New("boom")))
}
