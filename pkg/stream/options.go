package stream

import (
	"time"
)

// SubscribeOptions controls one subscription's gating and throttling.
// Use DefaultSubscribeOptions as the starting point; a nil options
// pointer passed to Router.Subscribe means all defaults.
type SubscribeOptions struct {
	// PauseOnHidden gates delivery while the subscriber is not
	// visible. Messages keep merging either way.
	PauseOnHidden bool

	// ResubscribeOnResume recreates the transport-level subscription
	// after a reconnect, guarding against silent loss of the
	// server-side subscription. Subscriber state is preserved.
	ResubscribeOnResume bool

	// UpdateInterval is the minimum spacing between deliveries for
	// this subscriber. Zero inherits the router's settings. Values
	// under 16ms are floored to 16ms.
	UpdateInterval time.Duration

	// ChangeThresholdPercent is the significant-change sensitivity
	// for this subscriber. Zero inherits the router's settings.
	ChangeThresholdPercent float64
}

// DefaultSubscribeOptions returns the default subscription options.
func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{
		PauseOnHidden:       true,
		ResubscribeOnResume: true,
	}
}
