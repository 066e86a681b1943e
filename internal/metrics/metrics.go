// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
type Recorder interface {
	// Authorization pipeline metrics
	IncAuthDecision(outcome string) // "allowed", "exempt", "bypassed", "unauthenticated", "rate_limited", "store_error"
	ObserveAuthorizeDuration(duration time.Duration)
	IncIdentityCache(result string) // "hit" or "miss"
	IncQuotaFallback()

	// Credential lifecycle metrics
	IncCredentialCreated()
	IncCredentialRevoked()
	IncCredentialRotated()

	// Usage pipeline metrics
	IncUsageEventPublished(status string) // "success" or "dropped"
	IncUsageEventProcessed(status string) // "success", "failed", "skipped"
	ObserveUsageBatchSize(size int)
	SetUsageQueueDepth(depth int64)
}
