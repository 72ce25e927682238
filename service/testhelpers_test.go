package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ipforge/walletauth/adapters/store"
	"github.com/ipforge/walletauth/core"
	"github.com/ipforge/walletauth/ports"
)

const (
	addressA = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	addressB = "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"
)

// fakeProvider is a scriptable wallet provider. Gates, when set, block the
// corresponding call until closed, so tests can interleave operations.
type fakeProvider struct {
	mu sync.Mutex

	address      string
	accountsErr  error
	accountsGate chan struct{}

	signErr   error
	signGate  chan struct{}
	signCalls int
	signedMsg string

	sendHash string
	sendErr  error
	sentTxs  []*core.TxRequest

	switchErr error
}

func (p *fakeProvider) RequestAccounts(ctx context.Context) (string, error) {
	if p.accountsGate != nil {
		<-p.accountsGate
	}
	if p.accountsErr != nil {
		return "", p.accountsErr
	}
	return p.address, nil
}

func (p *fakeProvider) SignMessage(ctx context.Context, address, text string) (string, error) {
	if p.signGate != nil {
		<-p.signGate
	}

	p.mu.Lock()
	p.signCalls++
	p.signedMsg = text
	p.mu.Unlock()

	if p.signErr != nil {
		return "", p.signErr
	}
	return "0xsignature", nil
}

func (p *fakeProvider) SendTransaction(ctx context.Context, tx *core.TxRequest) (string, error) {
	p.mu.Lock()
	p.sentTxs = append(p.sentTxs, tx)
	p.mu.Unlock()

	if p.sendErr != nil {
		return "", p.sendErr
	}
	if p.sendHash != "" {
		return p.sendHash, nil
	}
	return "0xhash", nil
}

func (p *fakeProvider) SwitchChain(ctx context.Context, params core.ChainParams) error {
	return p.switchErr
}

func (p *fakeProvider) signCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.signCalls
}

// fakeAuthority is a scriptable remote authority with call counters.
type fakeAuthority struct {
	mu sync.Mutex

	connectFn    func(message, signature string) (*ports.ConnectResult, error)
	connectCalls int

	usage    *core.UsageSnapshot
	usageErr error

	connections map[string]bool

	registration  *core.AssetRegistration
	registerErr   error
	registerCalls int

	linkErr   error
	unlinkErr error
}

func (a *fakeAuthority) Connect(ctx context.Context, message, signature string) (*ports.ConnectResult, error) {
	a.mu.Lock()
	a.connectCalls++
	a.mu.Unlock()

	if a.connectFn != nil {
		return a.connectFn(message, signature)
	}
	return &ports.ConnectResult{Token: "t1", UserID: "u1"}, nil
}

func (a *fakeAuthority) Usage(ctx context.Context, token string) (*core.UsageSnapshot, error) {
	if a.usageErr != nil {
		return nil, a.usageErr
	}
	return a.usage, nil
}

func (a *fakeAuthority) Connections(ctx context.Context, token string) (map[string]bool, error) {
	return a.connections, nil
}

func (a *fakeAuthority) RegisterAsset(ctx context.Context, token string, submission *core.AssetSubmission) (*core.AssetRegistration, error) {
	a.mu.Lock()
	a.registerCalls++
	a.mu.Unlock()

	if a.registerErr != nil {
		return nil, a.registerErr
	}
	if a.registration != nil {
		return a.registration, nil
	}
	return &core.AssetRegistration{TokenID: "42", SignerAddress: addressB, Signature: "0xdef"}, nil
}

func (a *fakeAuthority) LinkSocial(ctx context.Context, token, provider string) error {
	return a.linkErr
}

func (a *fakeAuthority) UnlinkSocial(ctx context.Context, token, provider string) error {
	return a.unlinkErr
}

func (a *fakeAuthority) connectCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.connectCalls
}

// recordingStore wraps a SecureStore and counts writes, so tests can assert
// that a no-op produced no persistence traffic.
type recordingStore struct {
	inner   ports.SecureStore
	mu      sync.Mutex
	sets    int
	deletes int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{inner: store.NewMemoryStore()}
}

func (s *recordingStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()

	return s.inner.Set(ctx, key, value)
}

func (s *recordingStore) Get(ctx context.Context, key string) (string, error) {
	return s.inner.Get(ctx, key)
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()

	return s.inner.Delete(ctx, key)
}

func (s *recordingStore) writes() (sets, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sets, s.deletes
}

// newTestAuthenticator builds an authenticator over the given fakes with a
// negligible retry delay.
func newTestAuthenticator(secureStore ports.SecureStore, authority ports.Authority) *Authenticator {
	return NewAuthenticator(Config{
		Store:      secureStore,
		Authority:  authority,
		Builder:    core.NewChallengeBuilder("market.example.org", "Sign in to the IP marketplace.", "https://market.example.org"),
		ChainID:    1,
		RetryDelay: time.Millisecond,
	})
}

// seedSession persists a full session for the given address.
func seedSession(t *testing.T, s ports.SecureStore, address, token, userID string) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, KeyToken, token))
	require.NoError(t, s.Set(ctx, KeyWalletAddress, address))
	require.NoError(t, s.Set(ctx, KeyUserID, userID))
}

// bearerToken mints a JWT with the given expiry for restore tests.
func bearerToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{Subject: subject}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("authority-secret"))
	require.NoError(t, err)
	return token
}
