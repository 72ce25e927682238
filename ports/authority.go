package ports

import (
	"context"

	"github.com/ipforge/walletauth/core"
)

// ConnectResult is the authority's response to a successful token exchange.
type ConnectResult struct {
	Token  string
	UserID string
}

// Authority is the remote service that verifies signed challenges and issues
// bearer credentials. All methods suspend on network I/O; errors are
// classified into the core error taxonomy by implementations.
type Authority interface {
	// Connect exchanges a rendered challenge message and its signature for a
	// bearer token and user id.
	Connect(ctx context.Context, message, signature string) (*ConnectResult, error)

	// Usage fetches point/multiplier/activity data for the token's user.
	Usage(ctx context.Context, token string) (*core.UsageSnapshot, error)

	// Connections returns the provider -> linked map of social identities.
	Connections(ctx context.Context, token string) (map[string]bool, error)

	// RegisterAsset registers an asset and returns the mint voucher.
	RegisterAsset(ctx context.Context, token string, submission *core.AssetSubmission) (*core.AssetRegistration, error)

	// LinkSocial links a social identity provider to the token's user.
	LinkSocial(ctx context.Context, token, provider string) error

	// UnlinkSocial removes a linked social identity provider.
	UnlinkSocial(ctx context.Context, token, provider string) error
}
