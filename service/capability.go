package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ipforge/walletauth/core"
	"github.com/ipforge/walletauth/internal/logger"
	"github.com/ipforge/walletauth/ports"
)

// CapabilityConfig wires a CapabilityClient.
type CapabilityConfig struct {
	Authenticator *Authenticator
	Authority     ports.Authority
	Logger        *logger.Logger

	// MarketAddress is the marketplace contract that receives access
	// purchase payments.
	MarketAddress string

	// OnAssetsChanged, when set, is invoked after a successful asset
	// registration so the caller can refresh its asset list.
	OnAssetsChanged func()
}

// CapabilityClient exposes operations gated on an authenticated session and
// an attached signing provider. The capability is recomputed on every call,
// never cached.
type CapabilityClient struct {
	auth            *Authenticator
	authority       ports.Authority
	log             *logger.Logger
	marketAddress   string
	onAssetsChanged func()
}

// NewCapabilityClient creates a capability client bound to an authenticator.
func NewCapabilityClient(cfg CapabilityConfig) *CapabilityClient {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDiscard()
	}
	return &CapabilityClient{
		auth:            cfg.Authenticator,
		authority:       cfg.Authority,
		log:             log,
		marketAddress:   cfg.MarketAddress,
		onAssetsChanged: cfg.OnAssetsChanged,
	}
}

// requireSession checks the authentication precondition and returns the
// current session.
func (c *CapabilityClient) requireSession() (core.Session, error) {
	session := c.auth.Session()
	if !session.Authenticated() {
		return core.Session{}, core.ErrNotAuthenticated
	}
	return session, nil
}

// requireProvider re-fetches the provider binding immediately before use;
// the binding may have been attached after authentication completed.
func (c *CapabilityClient) requireProvider() (ports.Provider, error) {
	provider := c.auth.Provider()
	if provider == nil {
		return nil, core.ErrProviderUnavailable
	}
	return provider, nil
}

// RegisterAsset registers an intellectual-property asset with the authority
// and completes the mint on-chain using the returned voucher. It returns the
// authority-assigned asset identifier.
func (c *CapabilityClient) RegisterAsset(ctx context.Context, submission *core.AssetSubmission) (string, error) {
	session, err := c.requireSession()
	if err != nil {
		return "", err
	}
	provider, err := c.requireProvider()
	if err != nil {
		return "", err
	}

	registration, err := c.authority.RegisterAsset(ctx, session.Token, submission)
	if err != nil {
		return "", err
	}

	// The voucher fields are opaque call data; encoding belongs to the
	// contract layer, not the session core.
	data, err := hexutil.Decode(registration.Signature)
	if err != nil {
		data = []byte(registration.Signature)
	}
	tx := &core.TxRequest{
		From: session.WalletAddress,
		To:   registration.SignerAddress,
		Data: data,
	}
	if _, err := provider.SendTransaction(ctx, tx); err != nil {
		return "", err
	}

	if c.onAssetsChanged != nil {
		c.onAssetsChanged()
	}
	return registration.TokenID, nil
}

// PurchaseAccess buys access to an asset for the given number of periods and
// returns the transaction hash. The total cost is computed with exact
// integer arithmetic; confirmation polling is the caller's concern.
func (c *CapabilityClient) PurchaseAccess(ctx context.Context, assetID string, periods uint64, pricePerPeriod *big.Int) (string, error) {
	session, err := c.requireSession()
	if err != nil {
		return "", err
	}
	provider, err := c.requireProvider()
	if err != nil {
		return "", err
	}

	total := new(big.Int).Mul(pricePerPeriod, new(big.Int).SetUint64(periods))

	tx := &core.TxRequest{
		From:  session.WalletAddress,
		To:    c.marketAddress,
		Value: total,
		Data:  []byte(assetID),
	}
	return provider.SendTransaction(ctx, tx)
}

// LinkSocialIdentity links a social identity provider to the current user.
func (c *CapabilityClient) LinkSocialIdentity(ctx context.Context, provider string) error {
	session, err := c.requireSession()
	if err != nil {
		return err
	}
	return c.authority.LinkSocial(ctx, session.Token, provider)
}

// UnlinkSocialIdentity removes a linked social identity provider.
func (c *CapabilityClient) UnlinkSocialIdentity(ctx context.Context, provider string) error {
	session, err := c.requireSession()
	if err != nil {
		return err
	}
	return c.authority.UnlinkSocial(ctx, session.Token, provider)
}

// Connections returns the provider -> linked map of social identities.
func (c *CapabilityClient) Connections(ctx context.Context) (map[string]bool, error) {
	session, err := c.requireSession()
	if err != nil {
		return nil, err
	}
	return c.authority.Connections(ctx, session.Token)
}

// GetUsage fetches usage data for the current user. Usage data is advisory:
// any failure, including not being authenticated, yields the conservative
// default snapshot instead of an error.
func (c *CapabilityClient) GetUsage(ctx context.Context) core.UsageSnapshot {
	session, err := c.requireSession()
	if err != nil {
		return core.DefaultUsageSnapshot()
	}

	usage, err := c.authority.Usage(ctx, session.Token)
	if err != nil {
		c.log.Warn("failed to fetch usage data, returning defaults", "error", err)
		return core.DefaultUsageSnapshot()
	}
	return *usage
}
