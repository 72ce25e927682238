package core

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// headerSuffix is the fixed first-line suffix of an EIP-4361 message.
// REF: https://eips.ethereum.org/EIPS/eip-4361
const headerSuffix = " wants you to sign in with your Ethereum account:"

// MessageVersion is the only EIP-4361 version in existence.
const MessageVersion = "1"

const nonceLength = 16

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ChallengeMessage is the structured sign-in payload presented to the wallet.
// A message is built fresh for every connect attempt and never reused.
type ChallengeMessage struct {
	Domain    string
	Address   string // EIP-55 checksummed
	Statement string
	URI       string
	Version   string
	ChainID   uint64
	Nonce     string
	IssuedAt  time.Time
}

// Render produces the canonical multi-line text that the wallet signs and
// the authority verifies. Field order is fixed so identical inputs always
// serialize identically.
func (m *ChallengeMessage) Render() string {
	var b strings.Builder
	b.WriteString(m.Domain)
	b.WriteString(headerSuffix)
	b.WriteString("\n")
	b.WriteString(m.Address)
	b.WriteString("\n\n")
	b.WriteString(m.Statement)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.UTC().Format(time.RFC3339))
	return b.String()
}

// ChallengeBuilder constructs challenge messages for a fixed application
// identity (domain, statement, uri).
type ChallengeBuilder struct {
	domain    string
	statement string
	uri       string
}

// NewChallengeBuilder creates a builder with the application identity baked in.
func NewChallengeBuilder(domain, statement, uri string) *ChallengeBuilder {
	return &ChallengeBuilder{
		domain:    domain,
		statement: statement,
		uri:       uri,
	}
}

// Build creates a fresh challenge for the given address and chain. The
// address is validated and canonicalized to its EIP-55 checksum form; the
// nonce comes from a cryptographic random source and is never reproducible
// across calls.
func (b *ChallengeBuilder) Build(address string, chainID uint64) (*ChallengeMessage, error) {
	if !addressPattern.MatchString(address) {
		return nil, WrapError(KindInvalidAddress, "invalid ethereum address", fmt.Errorf("malformed address %q", address))
	}
	if chainID == 0 {
		return nil, WrapError(KindInvalidAddress, "invalid chain id", fmt.Errorf("chain id must be positive"))
	}

	nonce, err := newNonce(nonceLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &ChallengeMessage{
		Domain:    b.domain,
		Address:   common.HexToAddress(address).Hex(),
		Statement: b.statement,
		URI:       b.uri,
		Version:   MessageVersion,
		ChainID:   chainID,
		Nonce:     nonce,
		IssuedAt:  time.Now().UTC(),
	}, nil
}

// newNonce draws n alphanumeric characters from crypto/rand.
func newNonce(n int) (string, error) {
	max := big.NewInt(int64(len(nonceAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(nonceAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// ValidAddress reports whether s is a well-formed hex ethereum address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ChecksumAddress canonicalizes a well-formed hex address to EIP-55 form.
func ChecksumAddress(s string) string {
	return common.HexToAddress(s).Hex()
}
