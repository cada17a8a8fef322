package router

// Rule names, in evaluation order.
const (
	RuleImageToVision  = "image_to_local_vision"
	RulePrivacyToLocal = "privacy_high_to_local"
	RuleComplexToCloud = "complex_to_cloud"
	RuleDefaultLocal   = "default_local"
)

type rule struct {
	name    string
	applies func(req Request, env EnvironmentStatus) bool
	decide  func(c Catalog, req Request, env EnvironmentStatus) RouteDecision
}

// rules is evaluated top to bottom and the first match wins. Hard constraints
// (image, privacy) come before any cost or capability preference, and the
// last rule always applies.
var rules = []rule{
	{
		name: RuleImageToVision,
		applies: func(req Request, _ EnvironmentStatus) bool {
			return req.HasImage
		},
		decide: func(c Catalog, _ Request, _ EnvironmentStatus) RouteDecision {
			return RouteDecision{TargetBackend: c.LocalVision, Provider: ProviderLocalVision, IsForcedLocal: true}
		},
	},
	{
		name: RulePrivacyToLocal,
		applies: func(req Request, _ EnvironmentStatus) bool {
			return req.PrivacyMode == PrivacyHigh
		},
		decide: func(c Catalog, _ Request, _ EnvironmentStatus) RouteDecision {
			return RouteDecision{TargetBackend: c.LocalText, Provider: ProviderLocalText, IsForcedLocal: true}
		},
	},
	{
		name: RuleComplexToCloud,
		applies: func(req Request, env EnvironmentStatus) bool {
			return env.CloudBackendAvailable && IsComplex(req.Text)
		},
		decide: func(c Catalog, _ Request, env EnvironmentStatus) RouteDecision {
			if env.CloudKeyProvider == KeyProviderOpenRouter {
				return RouteDecision{TargetBackend: c.OpenRouter, Provider: ProviderCloudOpenRouter}
			}
			return RouteDecision{TargetBackend: c.OpenAI, Provider: ProviderCloudOpenAI}
		},
	},
	{
		name: RuleDefaultLocal,
		applies: func(Request, EnvironmentStatus) bool {
			return true
		},
		decide: func(c Catalog, _ Request, _ EnvironmentStatus) RouteDecision {
			return RouteDecision{TargetBackend: c.LocalText, Provider: ProviderLocalText}
		},
	},
}

// Router maps a request and an environment snapshot to a RouteDecision.
type Router struct {
	catalog Catalog
}

// New creates a router over the given backend catalog.
func New(catalog Catalog) *Router {
	return &Router{catalog: catalog}
}

// Catalog returns the backend identifiers the router chooses from.
func (r *Router) Catalog() Catalog {
	return r.catalog
}

// Decide returns the decision of the first rule that applies. It is a pure
// function of its arguments and never performs I/O.
func (r *Router) Decide(req Request, env EnvironmentStatus) RouteDecision {
	for _, rl := range rules {
		if rl.applies(req, env) {
			d := rl.decide(r.catalog, req, env)
			d.Rule = rl.name
			return d
		}
	}
	// Unreachable: the last rule always applies.
	return RouteDecision{TargetBackend: r.catalog.LocalText, Provider: ProviderLocalText, Rule: RuleDefaultLocal}
}

// RuleNames lists the rules in evaluation order.
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, rl := range rules {
		names[i] = rl.name
	}
	return names
}
