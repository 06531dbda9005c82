package anthropic

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyContextErrors(t *testing.T) {
	assert.Equal(t, ErrTimedOut, Classify(context.DeadlineExceeded).Kind)
	assert.Equal(t, ErrTimedOut, Classify(context.Canceled).Kind)
	assert.Equal(t, ErrTimedOut, Classify(fmt.Errorf("call: %w", context.DeadlineExceeded)).Kind)
}

func TestClassifyNetworkErrors(t *testing.T) {
	assert.Equal(t, ErrNetworkError, Classify(syscall.ECONNRESET).Kind)
	assert.Equal(t, ErrNetworkError, Classify(syscall.ECONNREFUSED).Kind)

	var netErr net.Error = &net.DNSError{Err: "no such host", IsTimeout: false}
	assert.Equal(t, ErrNetworkError, Classify(netErr).Kind)

	timeoutErr := &net.DNSError{Err: "lookup", IsTimeout: true}
	assert.Equal(t, ErrTimedOut, Classify(timeoutErr).Kind)
}

func TestClassifyMessageHeuristics(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorKind
	}{
		{"request timed out after 10s", ErrTimedOut},
		{"rate limit exceeded, retry later", ErrRateLimited},
		{"monthly quota exhausted", ErrRateLimited},
		{"read tcp: connection reset by peer", ErrNetworkError},
		{"dial tcp: connection refused", ErrNetworkError},
		{"something inexplicable", ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(eris.New(tt.msg)).Kind)
		})
	}
}

func TestClassifyPassesThroughClassified(t *testing.T) {
	orig := &GenerateError{Kind: ErrAuthFailed, Err: eris.New("401")}
	assert.Same(t, orig, Classify(orig))
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig)))
}

func TestClassifyNil(t *testing.T) {
	var ge *GenerateError = Classify(nil)
	assert.Nil(t, ge)
}

func TestKindOf(t *testing.T) {
	err := &GenerateError{Kind: ErrRateLimited, Err: eris.New("429")}
	assert.Equal(t, ErrRateLimited, KindOf(err))
	assert.Equal(t, ErrRateLimited, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ErrUnknown, KindOf(eris.New("plain")))
	assert.Equal(t, ErrUnknown, KindOf(nil))
}

func TestQualifying(t *testing.T) {
	qualifying := []ErrorKind{ErrTimedOut, ErrRateLimited, ErrNetworkError}
	for _, kind := range qualifying {
		err := &GenerateError{Kind: kind, Err: eris.New("x")}
		assert.True(t, Qualifying(err), "kind %s must qualify", kind)
	}

	nonQualifying := []ErrorKind{ErrAuthFailed, ErrUnknown}
	for _, kind := range nonQualifying {
		err := &GenerateError{Kind: kind, Err: eris.New("x")}
		assert.False(t, Qualifying(err), "kind %s must not qualify", kind)
	}
	assert.False(t, Qualifying(eris.New("unclassified")))
}

func TestGenerateErrorUnwrap(t *testing.T) {
	inner := eris.New("boom")
	err := &GenerateError{Kind: ErrUnknown, Err: inner}
	require.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "unknown")
	assert.Contains(t, err.Error(), "boom")
}
