package health

import (
	"strings"

	"github.com/upb/omniagent/internal/router"
)

const (
	minHintLength    = 4
	placeholderKey   = "REPLACE_ME"
	openRouterPrefix = "sk-or-"
	openAIPrefix     = "sk-"
)

// InspectCredential derives the cloud provider from the credential's prefix
// and reports whether the credential is usable. A key shaped for neither
// provider is assumed to be an OpenAI key and reported unusable.
func InspectCredential(key string) (router.KeyProvider, bool) {
	key = strings.TrimSpace(key)
	if key == "" || strings.EqualFold(key, placeholderKey) {
		return router.KeyProviderNone, false
	}
	if strings.HasPrefix(key, openRouterPrefix) {
		return router.KeyProviderOpenRouter, len(key) > len(openRouterPrefix)
	}
	if strings.HasPrefix(key, openAIPrefix) {
		return router.KeyProviderOpenAI, len(key) > len(openAIPrefix)
	}
	return router.KeyProviderOpenAI, false
}

// KeyHint returns a redacted form of key that is safe to print.
func KeyHint(key string) string {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return "<unset>"
	case strings.EqualFold(key, placeholderKey):
		return "<placeholder>"
	case len(key) < minHintLength:
		return "<redacted>"
	case len(key) <= 10:
		return key[:3] + "..."
	default:
		return key[:6] + "..." + key[len(key)-4:]
	}
}
