// Package service contains the session authenticator state machine and the
// capability client gated on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ipforge/walletauth/core"
	"github.com/ipforge/walletauth/internal/logger"
	"github.com/ipforge/walletauth/ports"
)

// Secure store keys for the persisted session. All three are written as a
// group on success and removed as a group on teardown.
const (
	KeyToken         = "session:jwt"
	KeyWalletAddress = "session:wallet-address"
	KeyUserID        = "session:user-id"
)

// Observer receives the new state label after every session transition.
// Delivery is synchronous and in registration order.
type Observer func(state core.State)

// Snapshot is the externally visible session status.
type Snapshot struct {
	Authenticated bool
	Loading       bool
	WalletAddress string
	Err           error
}

// Config wires an Authenticator. Store, Authority and Builder are required;
// Events is optional.
type Config struct {
	Store     ports.SecureStore
	Authority ports.Authority
	Events    ports.EventPublisher
	Builder   *core.ChallengeBuilder
	Logger    *logger.Logger
	ChainID   uint64

	// RetryAttempts is the number of automatic retries after the first
	// attempt when the authority reports the challenge as expired.
	RetryAttempts int

	// RetryDelay is the fixed delay between those attempts.
	RetryDelay time.Duration
}

// Authenticator orchestrates the connect/disconnect/restore state machine.
// One instance exists per process; it owns the provider binding and the
// persisted session exclusively.
type Authenticator struct {
	store     ports.SecureStore
	authority ports.Authority
	events    ports.EventPublisher
	builder   *core.ChallengeBuilder
	log       *logger.Logger
	chainID   uint64

	retryAttempts int
	retryDelay    time.Duration

	mu         sync.Mutex
	session    core.Session
	provider   ports.Provider
	lastErr    error
	connecting bool
	generation uint64

	obsMu     sync.Mutex
	observers []observerEntry
}

type observerEntry struct {
	id uuid.UUID
	fn Observer
}

// NewAuthenticator creates a session authenticator in the unauthenticated
// state.
func NewAuthenticator(cfg Config) *Authenticator {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDiscard()
	}
	retryAttempts := cfg.RetryAttempts
	if retryAttempts == 0 {
		retryAttempts = 2
	}
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = time.Second
	}

	return &Authenticator{
		store:         cfg.Store,
		authority:     cfg.Authority,
		events:        cfg.Events,
		builder:       cfg.Builder,
		log:           log,
		chainID:       cfg.ChainID,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		session:       core.EmptySession(),
	}
}

// SetProvider attaches a wallet provider binding. The binding is owned by
// the authenticator until Disconnect clears it.
func (a *Authenticator) SetProvider(p ports.Provider) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.provider = p
}

// Provider returns the currently attached wallet provider, or nil.
func (a *Authenticator) Provider() ports.Provider {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.provider
}

// Session returns a copy of the current session.
func (a *Authenticator) Session() core.Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.session
}

// State returns the externally visible session status.
func (a *Authenticator) State() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		Authenticated: a.session.State == core.StateAuthenticated,
		Loading:       a.session.State == core.StateLoading,
		WalletAddress: a.session.WalletAddress,
		Err:           a.lastErr,
	}
}

// Subscribe registers an observer and returns its unsubscribe func.
func (a *Authenticator) Subscribe(fn Observer) func() {
	id := uuid.New()

	a.obsMu.Lock()
	a.observers = append(a.observers, observerEntry{id: id, fn: fn})
	a.obsMu.Unlock()

	return func() {
		a.obsMu.Lock()
		defer a.obsMu.Unlock()

		for i, entry := range a.observers {
			if entry.id == id {
				a.observers = append(a.observers[:i], a.observers[i+1:]...)
				return
			}
		}
	}
}

// Restore reads a previously persisted session. If the stored token is
// still plausible it transitions directly to authenticated without
// re-signing; a bound wallet whose address differs from the stored one
// discards the stored session instead. Call once at startup.
func (a *Authenticator) Restore(ctx context.Context) error {
	token, err := a.store.Get(ctx, KeyToken)
	if err != nil {
		return a.restoreReadError(ctx, err)
	}
	address, err := a.store.Get(ctx, KeyWalletAddress)
	if err != nil {
		return a.restoreReadError(ctx, err)
	}
	userID, err := a.store.Get(ctx, KeyUserID)
	if err != nil {
		return a.restoreReadError(ctx, err)
	}

	// An opaque token is restored as-is; a JWT with a past expiry is not
	// worth restoring, the authority would reject it anyway.
	if info, err := core.InspectToken(token); err == nil && info.Expired(time.Now()) {
		a.log.Info("discarding expired stored session", "address", address)
		a.clearStore(ctx)
		return nil
	}

	// A wallet bound before restore must agree on the address.
	if p := a.Provider(); p != nil {
		current, err := p.RequestAccounts(ctx)
		if err != nil || current != address {
			a.log.Info("stored session does not match bound wallet, discarding", "stored", address)
			a.clearStore(ctx)
			return nil
		}
	}

	a.mu.Lock()
	a.session = core.Session{
		WalletAddress: address,
		Token:         token,
		UserID:        userID,
		State:         core.StateAuthenticated,
	}
	a.lastErr = nil
	a.mu.Unlock()

	a.notify(core.StateAuthenticated)
	a.publish(ctx, address, core.StateAuthenticated)
	return nil
}

// restoreReadError distinguishes an absent session from a broken store. A
// partially present session is cleaned up and ignored.
func (a *Authenticator) restoreReadError(ctx context.Context, err error) error {
	if errors.Is(err, ports.ErrNotFound) {
		a.clearStore(ctx)
		return nil
	}
	return fmt.Errorf("failed to read persisted session: %w", err)
}

// Connect runs the challenge/sign/exchange sequence and returns the
// authenticated wallet address. A connect already in flight rejects this
// call with AlreadyPending. If the authority reports the challenge as
// expired, the full sequence is retried with a fresh nonce up to the
// configured attempts; all other failures surface immediately.
func (a *Authenticator) Connect(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.connecting {
		a.mu.Unlock()
		return "", core.ErrAlreadyPending
	}
	if a.provider == nil {
		a.mu.Unlock()
		return "", core.ErrProviderUnavailable
	}
	a.connecting = true
	gen := a.generation
	provider := a.provider
	prev := a.session
	a.session = core.Session{
		WalletAddress: prev.WalletAddress,
		State:         core.StateLoading,
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.connecting = false
		a.mu.Unlock()
	}()

	a.notify(core.StateLoading)
	a.publish(ctx, prev.WalletAddress, core.StateLoading)

	address, err := provider.RequestAccounts(ctx)
	if err != nil {
		return "", a.failConnect(ctx, gen, err)
	}

	if prev.Authenticated() {
		if prev.WalletAddress == address {
			// Restored or still-valid session for the same wallet; no
			// re-signing needed.
			return address, a.commit(ctx, gen, address, &ports.ConnectResult{Token: prev.Token, UserID: prev.UserID}, false)
		}
		// Stored session belongs to a different wallet. Discard it and run
		// the full cycle for the resolved address.
		a.log.Info("stored session address mismatch, re-authenticating", "stored", prev.WalletAddress, "wallet", address)
		a.clearStore(ctx)
	}

	result, err := a.exchangeWithRetry(ctx, provider, address)
	if err != nil {
		return "", a.failConnect(ctx, gen, err)
	}

	if err := a.commit(ctx, gen, address, result, true); err != nil {
		return "", err
	}
	return address, nil
}

// exchangeWithRetry runs build/sign/exchange, repeating the whole cycle on
// an expired challenge. Each retry signs a fresh nonce; partial resume would
// risk nonce reuse.
func (a *Authenticator) exchangeWithRetry(ctx context.Context, provider ports.Provider, address string) (*ports.ConnectResult, error) {
	attempts := 1 + a.retryAttempts

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			a.log.Info("challenge expired, retrying with a fresh nonce", "attempt", attempt)
			timer := time.NewTimer(a.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, core.WrapError(core.KindNetworkError, "connect cancelled", ctx.Err())
			case <-timer.C:
			}
		}

		result, err := a.exchange(ctx, provider, address)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, core.ErrChallengeExpired) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// exchange performs one full challenge/sign/exchange cycle.
func (a *Authenticator) exchange(ctx context.Context, provider ports.Provider, address string) (*ports.ConnectResult, error) {
	challenge, err := a.builder.Build(address, a.chainID)
	if err != nil {
		return nil, err
	}
	rendered := challenge.Render()

	signature, err := provider.SignMessage(ctx, address, rendered)
	if err != nil {
		return nil, err
	}

	return a.authority.Connect(ctx, rendered, signature)
}

// commit finalizes a successful connect. The session is persisted before the
// in-memory transition so a crash never leaves an authenticated state
// without stored credentials. A connect that resolves after a disconnect is
// discarded here.
func (a *Authenticator) commit(ctx context.Context, gen uint64, address string, result *ports.ConnectResult, persist bool) error {
	if persist {
		if err := a.persist(ctx, address, result); err != nil {
			return a.failConnect(ctx, gen, core.WrapError(core.KindAuthenticationFailed, "failed to persist session", err))
		}
	}

	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		// Disconnect won while we were in flight; the result is stale.
		a.clearStore(ctx)
		return core.NewError(core.KindAuthenticationFailed, "session was torn down while connecting")
	}
	a.session = core.Session{
		WalletAddress: address,
		Token:         result.Token,
		UserID:        result.UserID,
		State:         core.StateAuthenticated,
	}
	a.lastErr = nil
	a.mu.Unlock()

	a.notify(core.StateAuthenticated)
	a.publish(ctx, address, core.StateAuthenticated)
	return nil
}

// failConnect classifies a connect failure, resets the session to
// unauthenticated and returns the error surfaced to the caller.
func (a *Authenticator) failConnect(ctx context.Context, gen uint64, err error) error {
	var typed *core.Error
	if !errors.As(err, &typed) {
		err = core.WrapError(core.KindAuthenticationFailed, "authentication failed", err)
	}

	a.mu.Lock()
	if gen != a.generation {
		// A disconnect already reset the state; leave it alone.
		a.mu.Unlock()
		return err
	}
	address := a.session.WalletAddress
	a.session = core.Session{
		WalletAddress: address,
		State:         core.StateUnauthenticated,
	}
	a.lastErr = err
	a.mu.Unlock()

	a.notify(core.StateUnauthenticated)
	a.publish(ctx, address, core.StateUnauthenticated)
	return err
}

// Disconnect tears down the session: in-memory fields, the provider binding
// and the persisted keys. Already being unauthenticated is a no-op. Teardown
// always completes; persistence failures are logged, never raised.
func (a *Authenticator) Disconnect(ctx context.Context) {
	a.mu.Lock()
	if a.session.State == core.StateUnauthenticated {
		a.mu.Unlock()
		return
	}
	a.generation++
	address := a.session.WalletAddress
	a.session = core.EmptySession()
	a.provider = nil
	a.lastErr = nil
	a.mu.Unlock()

	a.notify(core.StateUnauthenticated)
	a.clearStore(ctx)
	a.publish(ctx, address, core.StateUnauthenticated)
}

// persist writes the session keys as a group; on any failure the group is
// rolled back so the store never holds a partial session.
func (a *Authenticator) persist(ctx context.Context, address string, result *ports.ConnectResult) error {
	entries := map[string]string{
		KeyToken:         result.Token,
		KeyWalletAddress: address,
		KeyUserID:        result.UserID,
	}
	for key, value := range entries {
		if err := a.store.Set(ctx, key, value); err != nil {
			a.clearStore(ctx)
			return fmt.Errorf("failed to persist %s: %w", key, err)
		}
	}
	return nil
}

// clearStore removes the session keys, best effort.
func (a *Authenticator) clearStore(ctx context.Context) {
	for _, key := range []string{KeyToken, KeyWalletAddress, KeyUserID} {
		if err := a.store.Delete(ctx, key); err != nil {
			a.log.Warn("failed to clear persisted session key", "key", key, "error", err)
		}
	}
}

// notify delivers the new state to all observers, synchronously and in
// registration order.
func (a *Authenticator) notify(state core.State) {
	a.obsMu.Lock()
	observers := make([]observerEntry, len(a.observers))
	copy(observers, a.observers)
	a.obsMu.Unlock()

	for _, entry := range observers {
		entry.fn(state)
	}
}

// publish forwards the transition to the cross-surface event publisher.
func (a *Authenticator) publish(ctx context.Context, address string, state core.State) {
	if a.events == nil {
		return
	}
	if err := a.events.PublishTransition(ctx, address, state); err != nil {
		a.log.Warn("failed to publish session transition", "state", state, "error", err)
	}
}
