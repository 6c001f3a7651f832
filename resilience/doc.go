// Package resilience wraps outbound LLM calls with four independent,
// composable primitives: bounded exponential-backoff retry, per-backend
// token-bucket rate limiting, per-backend circuit breaking, and a
// fingerprint-keyed response cache.
//
// The Stack owns the shared state tables (limiter buckets, circuit states,
// cache entries) and produces decorated llm.Provider values via Wrap. Each
// primitive can also be used on its own. All shared state is safe for
// concurrent callers; mutations are atomic per backend identifier or cache
// fingerprint, and no cross-key locking is performed.
package resilience
