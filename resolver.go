package authgate

import (
	"context"
	"net/mail"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// AuthDecision is the resolver's success output: the authenticated user plus
// a staleness hint. WasModified is true when the caller's cached version of
// the user differs from the server's current version; callers use it to
// decide whether to refetch full state.
type AuthDecision struct {
	User        *User `json:"user"`
	WasModified bool  `json:"was_modified"`
}

// Resolver finds and validates exactly one user for a strategy-specific
// credential bundle, applying suspension policy on every path. It never
// creates accounts; the registration engine owns that.
type Resolver struct {
	users  Users
	store  SessionStore
	config Config
	binder SessionBinder
	logger Logger
}

// NewResolver returns a Resolver over the given repository and session store.
func NewResolver(users Users, store SessionStore, config Config) *Resolver {
	return &Resolver{
		users:  users,
		store:  store,
		config: config,
		logger: defLogger{},
	}
}

func (r *Resolver) WithLogger(logger Logger) *Resolver {
	r.logger = logger
	return r
}

// WithSessionBinder configures the advisory binding token auth performs
// after a successful lookup. Token auth stays stateless per request; the
// binding is set-and-forget for subsequent requests in the same session.
func (r *Resolver) WithSessionBinder(binder SessionBinder) *Resolver {
	r.binder = binder
	return r
}

// WithToken authenticates a user id plus bearer API token. A correct id with
// a wrong token and a nonexistent id are not distinguishable to the caller.
// clientVersion is the caller's cached user version; empty means always
// stale.
func (r *Resolver) WithToken(ctx context.Context, userID, token, clientVersion string) (*AuthDecision, error) {
	if userID == "" || token == "" {
		return nil, ErrMissingCredential
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrNoUser
		}
		return nil, UpstreamError(err, "token auth lookup failed")
	}

	if !SecureEquals(user.APIToken, token) {
		return nil, ErrNoUser
	}

	if user.Blocked {
		return nil, AccountSuspendedError(user.ID.String(), r.config.GetSupportEmail())
	}

	wasModified := true
	if v, err := strconv.ParseInt(clientVersion, 10, 64); err == nil {
		wasModified = v != user.Version
	}

	if r.binder != nil {
		r.binder.BindUser(ctx, user.ID.String())
	}

	return &AuthDecision{User: user, WasModified: wasModified}, nil
}

// WithURLCredentials is token auth sourced from query parameters instead of
// headers, for contexts where header injection is impractical (redirect
// callbacks, webhooks). No version hint is carried.
func (r *Resolver) WithURLCredentials(ctx context.Context, userID, token string) (*AuthDecision, error) {
	return r.WithToken(ctx, userID, token, "")
}

// WithSession authenticates via a server-side session identifier.
func (r *Resolver) WithSession(ctx context.Context, sessionID string) (*AuthDecision, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	userID, err := r.store.Get(ctx, sessionID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrNoSession
		}
		return nil, UpstreamError(err, "session lookup failed")
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrNoUser
		}
		return nil, UpstreamError(err, "session auth lookup failed")
	}

	if user.Blocked {
		return nil, AccountSuspendedError(user.ID.String(), r.config.GetSupportEmail())
	}

	return &AuthDecision{User: user, WasModified: true}, nil
}

// WithLocalCredentials authenticates a username-or-email plus password. The
// identifier is treated as an email when it parses as one, otherwise as a
// username (case-sensitive). Lookup miss and wrong password share one
// undifferentiated denial; suspension is reported distinctly before any
// password comparison.
func (r *Resolver) WithLocalCredentials(ctx context.Context, identifier, password string) (*AuthDecision, error) {
	if identifier == "" || password == "" {
		return nil, ErrMissingCredential
	}

	var user *User
	var err error

	if isEmail(identifier) {
		user, err = r.users.GetByEmail(ctx, identifier)
	} else {
		user, err = r.users.GetByUsername(ctx, identifier)
	}

	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, UpstreamError(err, "local auth lookup failed")
	}

	if user.Blocked {
		return nil, AccountSuspendedError(user.ID.String(), r.config.GetSupportEmail())
	}

	if !VerifyPassword(password, user.Salt, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return &AuthDecision{User: user, WasModified: true}, nil
}

// WithFederatedIdentity resolves an already-verified external subject to a
// bound user. A miss returns NoUser so the registration engine can create
// the binding; this resolver never creates accounts.
func (r *Resolver) WithFederatedIdentity(ctx context.Context, provider, providerUserID string) (*AuthDecision, error) {
	if provider == "" || providerUserID == "" {
		return nil, ErrMissingCredential
	}

	user, err := r.users.GetByFederated(ctx, provider, providerUserID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrNoUser
		}
		return nil, UpstreamError(err, "federated auth lookup failed")
	}

	if user.Blocked {
		return nil, AccountSuspendedError(user.ID.String(), r.config.GetSupportEmail())
	}

	return &AuthDecision{User: user, WasModified: true}, nil
}

func isEmail(identifier string) bool {
	if !strings.Contains(identifier, "@") {
		return false
	}
	_, err := mail.ParseAddress(identifier)
	return err == nil
}
