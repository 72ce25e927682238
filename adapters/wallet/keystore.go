package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ipforge/walletauth/ports"
)

// KeystoreTransport is an in-process EIP-1193 transport backed by a
// secp256k1 key held in memory. It serves the CLI demo and tests with a real
// signing wallet and no external wallet app.
type KeystoreTransport struct {
	key     *ecdsa.PrivateKey
	address common.Address

	mu          sync.Mutex
	activeChain uint64
	knownChains map[uint64]bool
	txCounter   uint64
}

// NewKeystoreTransport creates a transport around an existing private key.
// The given chain id is the wallet's initially active network.
func NewKeystoreTransport(key *ecdsa.PrivateKey, chainID uint64) *KeystoreTransport {
	return &KeystoreTransport{
		key:         key,
		address:     crypto.PubkeyToAddress(key.PublicKey),
		activeChain: chainID,
		knownChains: map[uint64]bool{chainID: true},
	}
}

// GenerateKeystoreTransport creates a transport with a fresh random key.
func GenerateKeystoreTransport(chainID uint64) (*KeystoreTransport, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet key: %w", err)
	}
	return NewKeystoreTransport(key, chainID), nil
}

// Address returns the wallet's checksummed account address.
func (t *KeystoreTransport) Address() string {
	return t.address.Hex()
}

// Request dispatches an EIP-1193 request against the in-memory key.
func (t *KeystoreTransport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts":
		return json.Marshal([]string{t.address.Hex()})

	case "personal_sign":
		return t.personalSign(params)

	case "eth_sendTransaction":
		return t.sendTransaction(params)

	case "wallet_switchEthereumChain":
		return t.switchChain(params)

	case "wallet_addEthereumChain":
		return t.addChain(params)

	default:
		return nil, &ports.RPCError{Code: -32601, Message: fmt.Sprintf("method %s not supported", method)}
	}
}

func (t *KeystoreTransport) personalSign(params any) (json.RawMessage, error) {
	dataHex, _, err := twoStringParams(params)
	if err != nil {
		return nil, err
	}

	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, &ports.RPCError{Code: -32602, Message: "message is not hex encoded"}
	}

	// EIP-191 personal message prefix, then the recovery id offset wallets
	// apply to the raw secp256k1 signature.
	sig, err := crypto.Sign(accounts.TextHash(data), t.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return json.Marshal(hexutil.Encode(sig))
}

func (t *KeystoreTransport) sendTransaction(params any) (json.RawMessage, error) {
	t.mu.Lock()
	t.txCounter++
	counter := t.txCounter
	t.mu.Unlock()

	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, &ports.RPCError{Code: -32602, Message: "unreadable transaction object"}
	}

	// There is no node behind this transport, so the hash is derived from
	// the submission itself. It is stable per request and hash shaped.
	hash := crypto.Keccak256(append(encoded, byte(counter), byte(counter>>8)))
	return json.Marshal(hexutil.Encode(hash))
}

func (t *KeystoreTransport) switchChain(params any) (json.RawMessage, error) {
	chainID, err := chainIDParam(params)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.knownChains[chainID] {
		return nil, &ports.RPCError{Code: ports.CodeUnrecognizedChain, Message: "unrecognized chain"}
	}
	t.activeChain = chainID
	return json.Marshal(nil)
}

func (t *KeystoreTransport) addChain(params any) (json.RawMessage, error) {
	chainID, err := chainIDParam(params)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.knownChains[chainID] = true
	return json.Marshal(nil)
}

// ActiveChain returns the wallet's currently selected chain id.
func (t *KeystoreTransport) ActiveChain() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.activeChain
}

// twoStringParams extracts the [data, address] pair of personal_sign.
func twoStringParams(params any) (string, string, error) {
	list, ok := params.([]any)
	if !ok || len(list) < 2 {
		return "", "", &ports.RPCError{Code: -32602, Message: "expected [data, address] params"}
	}
	first, ok1 := list[0].(string)
	second, ok2 := list[1].(string)
	if !ok1 || !ok2 {
		return "", "", &ports.RPCError{Code: -32602, Message: "expected string params"}
	}
	return first, second, nil
}

// chainIDParam extracts the hex chainId field of switch/add chain params.
func chainIDParam(params any) (uint64, error) {
	list, ok := params.([]any)
	if !ok || len(list) == 0 {
		return 0, &ports.RPCError{Code: -32602, Message: "expected chain params"}
	}

	var chainHex string
	switch obj := list[0].(type) {
	case map[string]string:
		chainHex = obj["chainId"]
	case map[string]any:
		chainHex, _ = obj["chainId"].(string)
	default:
		return 0, &ports.RPCError{Code: -32602, Message: "expected chain object"}
	}

	chainID, err := hexutil.DecodeUint64(chainHex)
	if err != nil {
		return 0, &ports.RPCError{Code: -32602, Message: "malformed chainId"}
	}
	return chainID, nil
}
