package core

import "fmt"

// Kind classifies authentication and capability errors so callers can react
// to the failure class without parsing messages.
type Kind string

const (
	KindInvalidAddress       Kind = "invalid_address"
	KindNoAccountsReturned   Kind = "no_accounts_returned"
	KindUserRejected         Kind = "user_rejected"
	KindSigningUnavailable   Kind = "signing_unavailable"
	KindChainSwitchFailed    Kind = "chain_switch_failed"
	KindChallengeExpired     Kind = "challenge_expired"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindAlreadyPending       Kind = "already_pending"
	KindNotAuthenticated     Kind = "not_authenticated"
	KindProviderUnavailable  Kind = "provider_unavailable"
	KindSocialLinkingFailed  Kind = "social_linking_failed"
	KindNetworkError         Kind = "network_error"
)

// Error carries a machine-readable kind alongside a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error returns the human-readable message.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, which makes the
// sentinel values below usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError creates a typed error with the given kind and message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a typed error wrapping an underlying cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinel values for errors.Is matching. Each matches any *Error of the
// same kind regardless of message.
var (
	ErrInvalidAddress       = NewError(KindInvalidAddress, "invalid ethereum address")
	ErrNoAccountsReturned   = NewError(KindNoAccountsReturned, "wallet returned no accounts")
	ErrUserRejected         = NewError(KindUserRejected, "user rejected the request")
	ErrSigningUnavailable   = NewError(KindSigningUnavailable, "no signing provider attached")
	ErrChainSwitchFailed    = NewError(KindChainSwitchFailed, "wallet could not switch to the requested chain")
	ErrChallengeExpired     = NewError(KindChallengeExpired, "challenge expired")
	ErrAuthenticationFailed = NewError(KindAuthenticationFailed, "authentication failed")
	ErrAlreadyPending       = NewError(KindAlreadyPending, "a connect is already in progress")
	ErrNotAuthenticated     = NewError(KindNotAuthenticated, "not authenticated")
	ErrProviderUnavailable  = NewError(KindProviderUnavailable, "no usable signing provider")
	ErrSocialLinkingFailed  = NewError(KindSocialLinkingFailed, "social identity linking failed")
	ErrNetworkError         = NewError(KindNetworkError, "failed to reach the remote authority")
)

// SocialLinkingError builds a linking failure carrying the provider name.
func SocialLinkingError(provider string, err error) *Error {
	return WrapError(KindSocialLinkingFailed, fmt.Sprintf("linking %s failed", provider), err)
}
