package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipforge/walletauth/adapters/authority"
	"github.com/ipforge/walletauth/adapters/store"
	"github.com/ipforge/walletauth/adapters/wallet"
	"github.com/ipforge/walletauth/core"
)

// verifyingAuthority is an in-process authority that actually recovers the
// signer from the submitted signature and checks it against the address
// embedded in the challenge message.
type verifyingAuthority struct {
	server       *httptest.Server
	token        string
	userID       string
	connectCalls atomic.Int64

	// expireFirst rejects that many exchanges as expired before accepting.
	expireFirst int64
}

func newVerifyingAuthority(t *testing.T, token, userID string) *verifyingAuthority {
	t.Helper()
	gin.SetMode(gin.TestMode)

	a := &verifyingAuthority{token: token, userID: userID}

	router := gin.New()
	router.POST("/auth/connect", func(c *gin.Context) {
		attempt := a.connectCalls.Add(1)

		var req struct {
			Message   string `json:"message"`
			Signature string `json:"signature"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "malformed request"})
			return
		}

		if attempt <= a.expireFirst {
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "challenge nonce expired"})
			return
		}

		recovered, err := recoverSigner(req.Message, req.Signature)
		if err != nil || recovered != messageAddress(req.Message) {
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "signature verification failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data": gin.H{
				"jwt":  a.token,
				"user": gin.H{"id": a.userID},
			},
		})
	})

	a.server = httptest.NewServer(router)
	t.Cleanup(a.server.Close)
	return a
}

// recoverSigner undoes the EIP-191 prefix and recovery id offset and returns
// the checksummed signer address.
func recoverSigner(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", err
	}
	if len(sig) != 65 {
		return "", core.NewError(core.KindAuthenticationFailed, "signature has the wrong length")
	}
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// messageAddress extracts the account line of an EIP-4361 message.
func messageAddress(message string) string {
	lines := strings.Split(message, "\n")
	if len(lines) < 2 {
		return ""
	}
	return lines[1]
}

func newIntegrationAuthenticator(t *testing.T, remote *verifyingAuthority, secureStore *store.MemoryStore) (*Authenticator, *wallet.KeystoreTransport) {
	t.Helper()

	transport, err := wallet.GenerateKeystoreTransport(1)
	require.NoError(t, err)

	client := authority.NewClient(authority.Config{
		BaseURL:  remote.server.URL,
		ClientID: "walletauth-test",
	})

	auth := NewAuthenticator(Config{
		Store:      secureStore,
		Authority:  client,
		Builder:    core.NewChallengeBuilder("market.example.org", "Sign in to the IP marketplace.", "https://market.example.org"),
		ChainID:    1,
		RetryDelay: 1,
	})
	auth.SetProvider(wallet.NewBinding(transport))
	return auth, transport
}

func TestFullStackConnect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	token := bearerToken(t, "user-77", time.Now().Add(time.Hour))
	remote := newVerifyingAuthority(t, token, "user-77")
	secureStore := store.NewMemoryStore()

	auth, transport := newIntegrationAuthenticator(t, remote, secureStore)

	address, err := auth.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.Address(), address)
	assert.Equal(t, int64(1), remote.connectCalls.Load())

	session := auth.Session()
	assert.Equal(t, transport.Address(), session.WalletAddress)
	assert.Equal(t, token, session.Token)
	assert.Equal(t, "user-77", session.UserID)

	// The session survives a process restart through the secure store.
	restarted := NewAuthenticator(Config{
		Store:     secureStore,
		Authority: authority.NewClient(authority.Config{BaseURL: remote.server.URL}),
		Builder:   core.NewChallengeBuilder("market.example.org", "Sign in to the IP marketplace.", "https://market.example.org"),
		ChainID:   1,
	})
	require.NoError(t, restarted.Restore(ctx))
	restored := restarted.Session()
	require.True(t, restored.Authenticated())
	assert.Equal(t, transport.Address(), restored.WalletAddress)
}

func TestFullStackExpiredChallengeRetried(t *testing.T) {
	t.Parallel()

	token := bearerToken(t, "user-78", time.Now().Add(time.Hour))
	remote := newVerifyingAuthority(t, token, "user-78")
	remote.expireFirst = 2

	auth, _ := newIntegrationAuthenticator(t, remote, store.NewMemoryStore())

	_, err := auth.Connect(context.Background())
	require.NoError(t, err)

	assert.True(t, auth.Session().Authenticated())
	assert.Equal(t, int64(3), remote.connectCalls.Load())
}

func TestFullStackBadSignatureRejected(t *testing.T) {
	t.Parallel()

	remote := newVerifyingAuthority(t, "t", "u")
	secureStore := store.NewMemoryStore()
	auth, _ := newIntegrationAuthenticator(t, remote, secureStore)

	// A provider that signs with a key unrelated to the account it reports
	// must fail the exchange.
	other, err := wallet.GenerateKeystoreTransport(1)
	require.NoError(t, err)
	auth.SetProvider(&mismatchedProvider{signer: wallet.NewBinding(other)})

	_, err = auth.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAuthenticationFailed)
	assert.False(t, auth.Session().Authenticated())
	assert.Equal(t, 0, secureStore.Len())
}

// mismatchedProvider reports a fixed foreign address while signing with its
// own key.
type mismatchedProvider struct {
	signer interface {
		SignMessage(ctx context.Context, address, text string) (string, error)
	}
}

func (p *mismatchedProvider) RequestAccounts(ctx context.Context) (string, error) {
	return addressA, nil
}

func (p *mismatchedProvider) SignMessage(ctx context.Context, address, text string) (string, error) {
	return p.signer.SignMessage(ctx, address, text)
}

func (p *mismatchedProvider) SendTransaction(ctx context.Context, tx *core.TxRequest) (string, error) {
	return "0xhash", nil
}

func (p *mismatchedProvider) SwitchChain(ctx context.Context, params core.ChainParams) error {
	return nil
}
