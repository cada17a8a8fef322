package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/omniagent/internal/shared"
)

// scriptedInvoker returns a canned result per backend and records the calls.
type scriptedInvoker struct {
	mu      sync.Mutex
	results map[string]error
	calls   []string
	block   bool
}

func (s *scriptedInvoker) Invoke(ctx context.Context, target string) (*Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, target)
	err := s.results[target]
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &Response{Content: "answer from " + target, Model: target}, nil
}

func (s *scriptedInvoker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type countingInvalidator struct {
	count int
}

func (c *countingInvalidator) Invalidate() { c.count++ }

type quotaError struct{}

func (quotaError) Error() string               { return "429 insufficient_quota" }
func (quotaError) ErrorKind() shared.ErrorKind { return shared.KindInvocationQuotaExceeded }

func newTestCoordinator(health HealthInvalidator) *FallbackCoordinator {
	return NewFallbackCoordinator(DefaultCatalog(), time.Second, health, zap.NewNop())
}

func cloudDecision() RouteDecision {
	return RouteDecision{TargetBackend: DefaultCatalog().OpenRouter, Provider: ProviderCloudOpenRouter, Rule: RuleComplexToCloud}
}

func localDecision() RouteDecision {
	return RouteDecision{TargetBackend: DefaultCatalog().LocalText, Provider: ProviderLocalText, Rule: RuleDefaultLocal}
}

func TestFallbackCoordinator_CloudSuccess(t *testing.T) {
	inv := &scriptedInvoker{}
	outcome := newTestCoordinator(nil).Invoke(context.Background(), cloudDecision(), inv)

	assert.True(t, outcome.Succeeded)
	assert.False(t, outcome.UsedFallback)
	assert.False(t, outcome.Abandoned)
	assert.Equal(t, shared.KindNone, outcome.ErrorKind)
	assert.Equal(t, cloudDecision(), outcome.Decision)
	require.NotNil(t, outcome.Response)
	assert.False(t, outcome.Response.Fallback)
	assert.Equal(t, []string{DefaultCatalog().OpenRouter}, inv.Calls())
}

func TestFallbackCoordinator_CloudFailureFallsBackOnce(t *testing.T) {
	catalog := DefaultCatalog()
	inv := &scriptedInvoker{results: map[string]error{catalog.OpenRouter: quotaError{}}}
	health := &countingInvalidator{}

	outcome := newTestCoordinator(health).Invoke(context.Background(), cloudDecision(), inv)

	assert.True(t, outcome.Succeeded)
	assert.True(t, outcome.UsedFallback)
	assert.Equal(t, catalog.LocalText, outcome.Decision.TargetBackend)
	assert.Equal(t, ProviderLocalText, outcome.Decision.Provider)
	assert.True(t, outcome.Decision.IsForcedLocal)
	assert.Equal(t, RuleCloudFallback, outcome.Decision.Rule)
	assert.Equal(t, cloudDecision(), outcome.Original)
	assert.Equal(t, shared.KindInvocationQuotaExceeded, outcome.CloudErrorKind)
	require.NotNil(t, outcome.Response)
	assert.True(t, outcome.Response.Fallback)
	assert.Equal(t, FallbackNotice, outcome.Response.Notice)
	assert.Equal(t, []string{catalog.OpenRouter, catalog.LocalText}, inv.Calls())
	assert.Equal(t, 0, health.count, "a cloud failure does not invalidate health")
}

func TestFallbackCoordinator_CloudAndLocalFail(t *testing.T) {
	catalog := DefaultCatalog()
	inv := &scriptedInvoker{results: map[string]error{
		catalog.OpenAI:    quotaError{},
		catalog.LocalText: errors.New("connection refused"),
	}}
	health := &countingInvalidator{}
	decision := RouteDecision{TargetBackend: catalog.OpenAI, Provider: ProviderCloudOpenAI, Rule: RuleComplexToCloud}

	outcome := newTestCoordinator(health).Invoke(context.Background(), decision, inv)

	assert.False(t, outcome.Succeeded)
	assert.True(t, outcome.UsedFallback)
	assert.False(t, outcome.Abandoned)
	assert.Equal(t, shared.KindInvocationFailed, outcome.ErrorKind)
	assert.Equal(t, shared.KindInvocationQuotaExceeded, outcome.CloudErrorKind)
	assert.Contains(t, outcome.Remediation, "Privacy to 'High'")
	assert.Error(t, outcome.Err)
	assert.Equal(t, []string{catalog.OpenAI, catalog.LocalText}, inv.Calls(), "exactly one retry")
	assert.Equal(t, 1, health.count)
}

func TestFallbackCoordinator_LocalFailureIsTerminal(t *testing.T) {
	catalog := DefaultCatalog()
	inv := &scriptedInvoker{results: map[string]error{catalog.LocalText: errors.New("connection refused")}}
	health := &countingInvalidator{}

	outcome := newTestCoordinator(health).Invoke(context.Background(), localDecision(), inv)

	assert.False(t, outcome.Succeeded)
	assert.False(t, outcome.UsedFallback)
	assert.Equal(t, shared.KindInvocationFailed, outcome.ErrorKind)
	assert.Contains(t, outcome.Remediation, "Local runtime")
	assert.Equal(t, []string{catalog.LocalText}, inv.Calls(), "no cloud fallback and no retry")
	assert.Equal(t, 1, health.count)
}

func TestFallbackCoordinator_VisionFailureIsTerminal(t *testing.T) {
	catalog := DefaultCatalog()
	inv := &scriptedInvoker{results: map[string]error{catalog.LocalVision: errors.New("model not found")}}
	decision := RouteDecision{TargetBackend: catalog.LocalVision, Provider: ProviderLocalVision, IsForcedLocal: true}

	outcome := newTestCoordinator(nil).Invoke(context.Background(), decision, inv)

	assert.False(t, outcome.Succeeded)
	assert.False(t, outcome.UsedFallback)
	assert.Equal(t, []string{catalog.LocalVision}, inv.Calls())
}

func TestFallbackCoordinator_AttemptTimeout(t *testing.T) {
	catalog := DefaultCatalog()
	inv := &scriptedInvoker{block: true}
	c := NewFallbackCoordinator(catalog, 20*time.Millisecond, nil, zap.NewNop())

	outcome := c.Invoke(context.Background(), localDecision(), inv)

	assert.False(t, outcome.Succeeded)
	assert.False(t, outcome.Abandoned)
	assert.Equal(t, shared.KindInvocationTimeout, outcome.ErrorKind)
	assert.True(t, errors.Is(outcome.Err, shared.ErrInvocationTimeout))
}

func TestFallbackCoordinator_CloudTimeoutFallsBack(t *testing.T) {
	catalog := DefaultCatalog()
	blocking := InvokerFunc(func(ctx context.Context, target string) (*Response, error) {
		if target == catalog.OpenAI {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &Response{Content: "local"}, nil
	})
	decision := RouteDecision{TargetBackend: catalog.OpenAI, Provider: ProviderCloudOpenAI}
	c := NewFallbackCoordinator(catalog, 20*time.Millisecond, nil, zap.NewNop())

	outcome := c.Invoke(context.Background(), decision, blocking)

	assert.True(t, outcome.Succeeded)
	assert.True(t, outcome.UsedFallback)
	assert.Equal(t, shared.KindInvocationTimeout, outcome.CloudErrorKind)
}

func TestFallbackCoordinator_CallerCancellation(t *testing.T) {
	inv := &scriptedInvoker{block: true}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewFallbackCoordinator(DefaultCatalog(), time.Minute, nil, zap.NewNop())

	done := make(chan InvocationOutcome, 1)
	go func() { done <- c.Invoke(ctx, cloudDecision(), inv) }()

	require.Eventually(t, func() bool { return len(inv.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case outcome := <-done:
		assert.True(t, outcome.Abandoned)
		assert.False(t, outcome.Succeeded)
		assert.False(t, outcome.UsedFallback, "no fallback after caller cancellation")
		assert.Equal(t, shared.KindCanceled, outcome.ErrorKind)
		assert.Len(t, inv.Calls(), 1)
	case <-time.After(time.Second):
		t.Fatal("Invoke did not return after cancellation")
	}
}

func TestFallbackCoordinator_NilResponseIsFailure(t *testing.T) {
	empty := InvokerFunc(func(context.Context, string) (*Response, error) { return nil, nil })

	outcome := newTestCoordinator(nil).Invoke(context.Background(), localDecision(), empty)

	assert.False(t, outcome.Succeeded)
	assert.True(t, errors.Is(outcome.Err, ErrEmptyResponse))
}

func TestFallbackCoordinator_RecordsLatency(t *testing.T) {
	slow := InvokerFunc(func(context.Context, string) (*Response, error) {
		time.Sleep(5 * time.Millisecond)
		return &Response{Content: "ok"}, nil
	})

	outcome := newTestCoordinator(nil).Invoke(context.Background(), localDecision(), slow)

	assert.GreaterOrEqual(t, outcome.Latency, 5*time.Millisecond)
}
