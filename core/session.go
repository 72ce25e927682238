package core

// State is the authentication state of a session.
type State string

const (
	// StateUnauthenticated means no valid session exists.
	StateUnauthenticated State = "unauthenticated"

	// StateLoading means a connect is in flight.
	StateLoading State = "loading"

	// StateAuthenticated means a bearer token has been issued and persisted.
	StateAuthenticated State = "authenticated"
)

// Session is the identity binding between a wallet address and an
// application session.
type Session struct {
	WalletAddress string // EIP-55 checksummed; may be set mid-connect
	Token         string // opaque bearer credential; empty when unauthenticated
	UserID        string // authority-assigned identifier; empty when unauthenticated
	State         State
}

// EmptySession returns the zero session in the unauthenticated state.
func EmptySession() Session {
	return Session{State: StateUnauthenticated}
}

// Authenticated reports whether the session holds an issued credential.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

// Consistent reports whether the session honors its core invariant:
// token and user id are set if and only if the state is authenticated.
func (s Session) Consistent() bool {
	hasCredentials := s.Token != "" && s.UserID != ""
	if s.State == StateAuthenticated {
		return hasCredentials && s.WalletAddress != ""
	}
	return s.Token == "" && s.UserID == ""
}
