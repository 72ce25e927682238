package core

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AssetSubmission describes an intellectual-property asset to register with
// the authority. License terms and metadata are passed through opaquely.
type AssetSubmission struct {
	Source       string            `json:"source"`
	Metadata     map[string]string `json:"metadata"`
	LicenseTerms string            `json:"licenseTerms"`
	File         []byte            `json:"file,omitempty"`
}

// AssetRegistration is the authority's mint voucher for a registered asset.
// Its fields are consumed opaquely to complete the on-chain mint.
type AssetRegistration struct {
	TokenID       string `json:"tokenId"`
	SignerAddress string `json:"signerAddress"`
	ContentHash   string `json:"contentHash"`
	Signature     string `json:"signature"`
	URI           string `json:"uri"`
}

// UsageSnapshot is advisory point/multiplier/activity data for the current
// user. Values are decimals so authority-reported fractions survive intact.
type UsageSnapshot struct {
	Points     decimal.Decimal
	Multiplier decimal.Decimal
	Active     bool
}

// DefaultUsageSnapshot is the conservative zeroed snapshot returned when
// usage data cannot be fetched.
func DefaultUsageSnapshot() UsageSnapshot {
	return UsageSnapshot{
		Points:     decimal.Zero,
		Multiplier: decimal.Zero,
		Active:     false,
	}
}

// TxRequest is a transaction submitted through the wallet provider. Call
// encoding is the caller's concern; the session core passes it through.
type TxRequest struct {
	From  string
	To    string
	Value *big.Int // wei; nil means zero
	Data  []byte
}

// ChainParams describes a network for wallet_addEthereumChain, used when the
// wallet does not recognize the chain on a switch request.
type ChainParams struct {
	ChainID        uint64
	Name           string
	RPCURL         string
	CurrencyName   string
	CurrencySymbol string
}
