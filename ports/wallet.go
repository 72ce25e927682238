package ports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ipforge/walletauth/core"
)

// EIP-1193 provider error codes surfaced by wallet transports.
// REF: https://eips.ethereum.org/EIPS/eip-1193
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// RPCError is a wallet transport error carrying an EIP-1193 code.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// Transport is the EIP-1193-shaped request capability of a wallet backend.
// Implementations are backed by a browser extension bridge, a mobile wallet
// link, or an in-process keystore.
type Transport interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Provider exposes the four wallet operations the session core needs,
// adapted from a raw Transport. It holds no state beyond the transport
// reference it wraps.
type Provider interface {
	// RequestAccounts triggers the wallet's account selection and returns
	// the first account, checksummed.
	RequestAccounts(ctx context.Context) (string, error)

	// SignMessage requests a personal signature over the raw text for the
	// given account and returns the hex-encoded signature.
	SignMessage(ctx context.Context, address, text string) (string, error)

	// SendTransaction submits a transaction and returns its hash without
	// waiting for confirmation.
	SendTransaction(ctx context.Context, tx *core.TxRequest) (string, error)

	// SwitchChain asks the wallet to switch networks, registering the chain
	// parameters and retrying once if the wallet does not recognize it.
	SwitchChain(ctx context.Context, params core.ChainParams) error
}
