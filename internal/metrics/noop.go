package metrics

import "time"

// Noop is a Recorder that discards all metrics.
// Useful for tests and when metrics are disabled.
type Noop struct{}

// NewNoop creates a no-op metrics recorder.
func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) IncAuthDecision(string)                 {}
func (n *Noop) ObserveAuthorizeDuration(time.Duration) {}
func (n *Noop) IncIdentityCache(string)                {}
func (n *Noop) IncQuotaFallback()                      {}
func (n *Noop) IncCredentialCreated()                  {}
func (n *Noop) IncCredentialRevoked()                  {}
func (n *Noop) IncCredentialRotated()                  {}
func (n *Noop) IncUsageEventPublished(string)          {}
func (n *Noop) IncUsageEventProcessed(string)          {}
func (n *Noop) ObserveUsageBatchSize(int)              {}
func (n *Noop) SetUsageQueueDepth(int64)               {}

var _ Recorder = (*Noop)(nil)
