// Package router decides which backend handles a chat turn and coordinates the
// single local fallback when a cloud call fails.
//
// This package provides:
//   - IsComplex, the heuristic that separates reasoning-heavy prompts
//   - Router, an ordered rule table evaluated first-match-wins
//   - FallbackCoordinator, which invokes a decision with a per-attempt timeout
//
// Decisions are pure functions of the Request and the EnvironmentStatus
// snapshot. Nothing here reads usage counters or persisted state.
package router
