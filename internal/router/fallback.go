package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/omniagent/internal/shared"
)

const (
	// DefaultAttemptTimeout bounds a single backend call.
	DefaultAttemptTimeout = 60 * time.Second

	// RuleCloudFallback names the decision used for the local retry.
	RuleCloudFallback = "cloud_failure_to_local"

	// FallbackNotice is attached to responses produced by the local retry.
	FallbackNotice = "(fallback to local)"
)

// ErrEmptyResponse is returned when a backend reports success without a response.
var ErrEmptyResponse = errors.New("backend returned no response")

// Invoker performs one call against the named backend.
type Invoker interface {
	Invoke(ctx context.Context, targetBackend string) (*Response, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, targetBackend string) (*Response, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, targetBackend string) (*Response, error) {
	return f(ctx, targetBackend)
}

// HealthInvalidator drops cached availability so the next status read re-probes.
type HealthInvalidator interface {
	Invalidate()
}

// InvocationOutcome is the result of executing a RouteDecision.
type InvocationOutcome struct {
	// Decision is the decision of the last attempt made. After a fallback it
	// targets the local text backend.
	Decision RouteDecision `json:"decision"`
	// Original is the decision as the router produced it.
	Original     RouteDecision    `json:"original"`
	Succeeded    bool             `json:"succeeded"`
	UsedFallback bool             `json:"used_fallback"`
	ErrorKind    shared.ErrorKind `json:"error_kind,omitempty"`
	// CloudErrorKind is the kind of the cloud failure that triggered a fallback.
	CloudErrorKind shared.ErrorKind `json:"cloud_error_kind,omitempty"`
	// Abandoned is set when the caller cancelled before an outcome was known.
	// Abandoned outcomes must not be counted.
	Abandoned   bool          `json:"abandoned"`
	Remediation string        `json:"remediation,omitempty"`
	Response    *Response     `json:"response,omitempty"`
	Err         error         `json:"-"`
	Latency     time.Duration `json:"latency"`
}

// FallbackCoordinator executes decisions. A failed cloud call is retried
// exactly once against the local text backend. A failed local call is final.
type FallbackCoordinator struct {
	catalog        Catalog
	attemptTimeout time.Duration
	health         HealthInvalidator
	logger         *zap.Logger
}

// NewFallbackCoordinator creates a coordinator. health may be nil.
func NewFallbackCoordinator(catalog Catalog, attemptTimeout time.Duration, health HealthInvalidator, logger *zap.Logger) *FallbackCoordinator {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackCoordinator{
		catalog:        catalog,
		attemptTimeout: attemptTimeout,
		health:         health,
		logger:         logger,
	}
}

// Invoke runs decision through invoker and applies the fallback rule.
func (c *FallbackCoordinator) Invoke(ctx context.Context, decision RouteDecision, invoker Invoker) (outcome InvocationOutcome) {
	start := time.Now()
	outcome = InvocationOutcome{Decision: decision, Original: decision}
	defer func() { outcome.Latency = time.Since(start) }()

	resp, err := c.attempt(ctx, decision, invoker)
	if err == nil {
		outcome.Succeeded = true
		outcome.Response = resp
		return outcome
	}
	if ctx.Err() != nil {
		return c.abandon(outcome, err)
	}

	kind := shared.KindOf(err)
	if !decision.Provider.IsCloud() {
		c.invalidateHealth()
		c.logger.Error("local backend failed",
			zap.String("backend", decision.TargetBackend),
			zap.String("error_kind", string(kind)),
			zap.Error(err),
		)
		outcome.ErrorKind = kind
		outcome.Err = err
		outcome.Remediation = shared.Remediation(kind, true)
		return outcome
	}

	c.logger.Warn("cloud backend failed, falling back to local",
		zap.String("backend", decision.TargetBackend),
		zap.String("fallback_backend", c.catalog.LocalText),
		zap.String("error_kind", string(kind)),
		zap.Error(err),
	)

	fallback := RouteDecision{
		TargetBackend: c.catalog.LocalText,
		Provider:      ProviderLocalText,
		IsForcedLocal: true,
		Rule:          RuleCloudFallback,
	}
	outcome.Decision = fallback
	outcome.UsedFallback = true
	outcome.CloudErrorKind = kind

	resp, fbErr := c.attempt(ctx, fallback, invoker)
	if fbErr == nil {
		resp.Fallback = true
		resp.Notice = FallbackNotice
		outcome.Succeeded = true
		outcome.Response = resp
		return outcome
	}
	if ctx.Err() != nil {
		return c.abandon(outcome, fbErr)
	}

	c.invalidateHealth()
	fbKind := shared.KindOf(fbErr)
	c.logger.Error("local fallback failed",
		zap.String("backend", fallback.TargetBackend),
		zap.String("error_kind", string(fbKind)),
		zap.String("cloud_error_kind", string(kind)),
		zap.Error(fbErr),
	)
	outcome.ErrorKind = fbKind
	outcome.Err = fmt.Errorf("cloud call failed (%v), local fallback failed: %w", err, fbErr)
	outcome.Remediation = shared.FallbackRemediation(kind)
	return outcome
}

// attempt performs one call bounded by the per-attempt timeout.
func (c *FallbackCoordinator) attempt(ctx context.Context, decision RouteDecision, invoker Invoker) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	c.logger.Debug("invoking backend",
		zap.String("backend", decision.TargetBackend),
		zap.String("provider", string(decision.Provider)),
		zap.String("rule", decision.Rule),
	)

	resp, err := invoker.Invoke(attemptCtx, decision.TargetBackend)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s: %v", shared.ErrInvocationTimeout, decision.TargetBackend, c.attemptTimeout, err)
		}
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%s: %w", decision.TargetBackend, ErrEmptyResponse)
	}
	return resp, nil
}

func (c *FallbackCoordinator) abandon(outcome InvocationOutcome, err error) InvocationOutcome {
	c.logger.Debug("backend call abandoned by caller",
		zap.String("backend", outcome.Decision.TargetBackend),
		zap.Error(err),
	)
	outcome.Abandoned = true
	outcome.Succeeded = false
	outcome.ErrorKind = shared.KindCanceled
	outcome.Err = err
	return outcome
}

func (c *FallbackCoordinator) invalidateHealth() {
	if c.health != nil {
		c.health.Invalidate()
	}
}
