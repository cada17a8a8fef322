package shared

import (
	"context"
	"errors"
	"net"
)

// ErrorKind classifies why a backend invocation did not produce a response.
type ErrorKind string

const (
	KindNone ErrorKind = ""

	// KindInvalidInput is handled by sanitization and never surfaced by routing.
	KindInvalidInput ErrorKind = "invalid_input"

	// KindBackendUnavailable marks a failed probe or credential check. It is
	// routed around rather than raised.
	KindBackendUnavailable ErrorKind = "backend_unavailable"

	KindInvocationTimeout       ErrorKind = "invocation_timeout"
	KindInvocationQuotaExceeded ErrorKind = "invocation_quota_exceeded"
	KindInvocationFailed        ErrorKind = "invocation_failed"
	KindCanceled                ErrorKind = "canceled"
)

var (
	ErrInvocationTimeout = &KindError{Kind: KindInvocationTimeout, Message: "backend call timed out"}
	ErrQuotaExceeded     = &KindError{Kind: KindInvocationQuotaExceeded, Message: "backend quota exceeded"}
	ErrInvocationFailed  = &KindError{Kind: KindInvocationFailed, Message: "backend call failed"}
)

// KindError is a sentinel carrying an ErrorKind.
type KindError struct {
	Kind    ErrorKind
	Message string
}

func (e *KindError) Error() string { return e.Message }

// ErrorKind implements Kinded.
func (e *KindError) ErrorKind() ErrorKind { return e.Kind }

// Kinded is implemented by errors that know their own ErrorKind.
type Kinded interface {
	ErrorKind() ErrorKind
}

// KindOf maps an invocation error to an ErrorKind. A nil error yields KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var kinded Kinded
	if errors.As(err, &kinded) {
		if k := kinded.ErrorKind(); k != KindNone {
			return k
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindInvocationTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindInvocationTimeout
	}

	return KindInvocationFailed
}

// Remediation returns user-facing guidance for a terminal failure. local reports
// whether the failing attempt targeted the local runtime.
func Remediation(kind ErrorKind, local bool) string {
	switch kind {
	case KindNone:
		return ""
	case KindCanceled:
		return "Request was canceled before a response arrived."
	case KindInvocationQuotaExceeded:
		if local {
			return "Local runtime rejected the request as over capacity. Retry shortly."
		}
		return "Cloud quota exceeded. Check your API plan or set Privacy to 'High' to use local models only."
	case KindInvocationTimeout:
		if local {
			return "Local runtime timed out. Make sure Ollama is running and the model is pulled, or increase BACKEND_TIMEOUT."
		}
		return "Cloud backend timed out. Retry, or set Privacy to 'High' to use local models only."
	case KindBackendUnavailable:
		if local {
			return "Local runtime unreachable. Start it with `ollama serve` and check OLLAMA_BASE_URL."
		}
		return "Cloud backend unavailable. Check OPENAI_API_KEY."
	default:
		if local {
			return "Local runtime unreachable or failed. Start it with `ollama serve` and pull the model (for example `ollama pull llama3:8b`)."
		}
		return "Cloud backend call failed. Check OPENAI_API_KEY or set Privacy to 'High' to use local models only."
	}
}

// FallbackRemediation is shown when a cloud call failed and the local retry failed too.
func FallbackRemediation(cloudKind ErrorKind) string {
	if cloudKind == KindInvocationQuotaExceeded {
		return "Cloud quota exceeded and local fallback failed. Try setting Privacy to 'High' to use local models only, and make sure Ollama is running."
	}
	return "Cloud call failed and local fallback failed. Try setting Privacy to 'High' to use local models only, and make sure Ollama is running."
}
