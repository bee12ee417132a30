package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Call(ctx context.Context, req *Request) (*Response, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &Response{Content: "ok"}, nil
}

func TestCallWithRetryReturnsLastError(t *testing.T) {
	c := &scriptedClient{errs: []error{
		fmt.Errorf("first"), fmt.Errorf("second"), fmt.Errorf("third"), fmt.Errorf("fourth"),
	}}

	resp, attempts, err := CallWithRetry(context.Background(), c, &Request{}, RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond})
	assert.Nil(t, resp)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, c.calls)
	require.EqualError(t, err, "third")
}

func TestCallWithRetryRecovers(t *testing.T) {
	c := &scriptedClient{errs: []error{errors.New("flaky")}}

	resp, attempts, err := CallWithRetry(context.Background(), c, &Request{}, RetryPolicy{Attempts: 3})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, attempts)
}

func TestCallWithRetryMinimumOneAttempt(t *testing.T) {
	c := &scriptedClient{errs: []error{errors.New("boom")}}

	_, attempts, err := CallWithRetry(context.Background(), c, &Request{}, RetryPolicy{})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, c.calls)
}

func TestCallWithRetryStopsOnCancel(t *testing.T) {
	c := &scriptedClient{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, attempts, err := CallWithRetry(ctx, c, &Request{}, RetryPolicy{Attempts: 3, BaseDelay: time.Hour})
	require.EqualError(t, err, "a")
	assert.Equal(t, 1, attempts)
}
