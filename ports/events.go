package ports

import (
	"context"

	"github.com/ipforge/walletauth/core"
)

// EventPublisher publishes session state transitions so out-of-process
// surfaces can follow session status. In-process observers are served by the
// authenticator's own registry; this port is the cross-surface fan-out.
type EventPublisher interface {
	PublishTransition(ctx context.Context, address string, state core.State) error
}
