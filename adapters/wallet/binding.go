// Package wallet adapts EIP-1193 wallet transports into the provider
// operations the session core depends on.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ipforge/walletauth/core"
	"github.com/ipforge/walletauth/ports"
)

// Binding adapts a raw wallet transport into the four provider operations.
// It holds no state beyond the attached transport reference.
type Binding struct {
	transport ports.Transport
}

// NewBinding creates a provider binding over the given transport.
func NewBinding(transport ports.Transport) *Binding {
	return &Binding{transport: transport}
}

// RequestAccounts triggers the wallet's account-selection flow and returns
// the first account, checksummed.
func (b *Binding) RequestAccounts(ctx context.Context) (string, error) {
	if b.transport == nil {
		return "", core.ErrProviderUnavailable
	}

	raw, err := b.transport.Request(ctx, "eth_requestAccounts", nil)
	if err != nil {
		return "", classifyTransportError(err, "account request failed")
	}

	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return "", core.WrapError(core.KindNoAccountsReturned, "wallet returned an unreadable account list", err)
	}
	if len(accounts) == 0 {
		return "", core.ErrNoAccountsReturned
	}
	if !core.ValidAddress(accounts[0]) {
		return "", core.WrapError(core.KindNoAccountsReturned, "wallet returned a malformed account", fmt.Errorf("account %q", accounts[0]))
	}

	return core.ChecksumAddress(accounts[0]), nil
}

// SignMessage requests a personal signature over the raw text.
func (b *Binding) SignMessage(ctx context.Context, address, text string) (string, error) {
	if b.transport == nil {
		return "", core.ErrSigningUnavailable
	}

	params := []any{hexutil.Encode([]byte(text)), address}
	raw, err := b.transport.Request(ctx, "personal_sign", params)
	if err != nil {
		return "", classifyTransportError(err, "signature request failed")
	}

	var signature string
	if err := json.Unmarshal(raw, &signature); err != nil {
		return "", core.WrapError(core.KindSigningUnavailable, "wallet returned an unreadable signature", err)
	}
	return signature, nil
}

// SendTransaction submits a transaction and returns its hash immediately,
// without waiting for confirmation.
func (b *Binding) SendTransaction(ctx context.Context, tx *core.TxRequest) (string, error) {
	if b.transport == nil {
		return "", core.ErrSigningUnavailable
	}

	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	params := []any{map[string]string{
		"from":  tx.From,
		"to":    tx.To,
		"value": hexutil.EncodeBig(value),
		"data":  hexutil.Encode(tx.Data),
	}}

	raw, err := b.transport.Request(ctx, "eth_sendTransaction", params)
	if err != nil {
		return "", classifyTransportError(err, "transaction submission failed")
	}

	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", core.WrapError(core.KindSigningUnavailable, "wallet returned an unreadable transaction hash", err)
	}
	return hash, nil
}

// SwitchChain asks the wallet to switch networks. If the wallet does not
// recognize the chain, its parameters are registered and the switch is
// retried once.
func (b *Binding) SwitchChain(ctx context.Context, params core.ChainParams) error {
	if b.transport == nil {
		return core.ErrProviderUnavailable
	}

	err := b.requestSwitch(ctx, params.ChainID)
	if err == nil {
		return nil
	}

	var rpcErr *ports.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != ports.CodeUnrecognizedChain {
		return classifyTransportError(err, "chain switch failed")
	}

	if err := b.requestAdd(ctx, params); err != nil {
		return core.WrapError(core.KindChainSwitchFailed, "failed to register chain with wallet", err)
	}
	if err := b.requestSwitch(ctx, params.ChainID); err != nil {
		return core.WrapError(core.KindChainSwitchFailed, "chain switch failed after registering chain", err)
	}
	return nil
}

func (b *Binding) requestSwitch(ctx context.Context, chainID uint64) error {
	params := []any{map[string]string{
		"chainId": hexutil.EncodeUint64(chainID),
	}}
	_, err := b.transport.Request(ctx, "wallet_switchEthereumChain", params)
	return err
}

func (b *Binding) requestAdd(ctx context.Context, p core.ChainParams) error {
	params := []any{map[string]any{
		"chainId":   hexutil.EncodeUint64(p.ChainID),
		"chainName": p.Name,
		"rpcUrls":   []string{p.RPCURL},
		"nativeCurrency": map[string]any{
			"name":     p.CurrencyName,
			"symbol":   p.CurrencySymbol,
			"decimals": 18,
		},
	}}
	_, err := b.transport.Request(ctx, "wallet_addEthereumChain", params)
	return err
}

// classifyTransportError maps wallet transport failures onto the error
// taxonomy. User cancellation is recognized by its EIP-1193 code.
func classifyTransportError(err error, message string) error {
	var rpcErr *ports.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case ports.CodeUserRejected:
			return core.WrapError(core.KindUserRejected, "user rejected the request", err)
		case ports.CodeUnrecognizedChain:
			return core.WrapError(core.KindChainSwitchFailed, "wallet does not recognize the chain", err)
		}
	}
	// Anything else means the transport itself is not usable.
	return core.WrapError(core.KindProviderUnavailable, message, err)
}
