package authgate

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

// RegisterMessage is the local registration payload.
type RegisterMessage struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	// UseHashid derives a deterministic user id from the email instead of a
	// random one.
	UseHashid bool `json:"-"`
}

// FederatedSignInResult is what a federated sign-in hands back: the bound
// user (possibly just created) and a freshly minted session.
type FederatedSignInResult struct {
	User      *User  `json:"user"`
	SessionID string `json:"session_id"`
	IsNewUser bool   `json:"is_new_user"`
}

// RegistrationEngine creates local accounts and signs in federated
// identities. Existence pre-checks give friendly errors; the repository's
// unique constraints remain the authoritative guard against concurrent
// duplicate registrations.
type RegistrationEngine struct {
	users    Users
	issuer   *Issuer
	notifier Notifier
	config   Config
	logger   Logger
}

// NewRegistrationEngine wires the engine to its collaborators.
func NewRegistrationEngine(users Users, issuer *Issuer, notifier Notifier, config Config) *RegistrationEngine {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &RegistrationEngine{
		users:    users,
		issuer:   issuer,
		notifier: notifier,
		config:   config,
		logger:   defLogger{},
	}
}

func (e *RegistrationEngine) WithLogger(logger Logger) *RegistrationEngine {
	e.logger = logger
	return e
}

// RegisterLocal creates a new local account. The returned user includes the
// newly minted API token. The welcome notification is dispatched only after
// persistence is confirmed and never fails the registration.
func (e *RegistrationEngine) RegisterLocal(ctx context.Context, msg RegisterMessage) (*User, error) {
	if err := validateRegisterMessage(msg); err != nil {
		return nil, err
	}

	// Friendly pre-checks. The insert below is the authoritative guard.
	if _, err := e.users.GetByEmail(ctx, msg.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !goerrors.IsNotFound(err) {
		return nil, UpstreamError(err, "email existence check failed")
	}

	if _, err := e.users.GetByUsername(ctx, msg.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !goerrors.IsNotFound(err) {
		return nil, UpstreamError(err, "username existence check failed")
	}

	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(msg.Password, salt)
	if err != nil {
		return nil, err
	}

	token, err := MintToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &User{
		Username:       msg.Username,
		Email:          msg.Email,
		Salt:           salt,
		PasswordHash:   hash,
		APIToken:       token,
		CreatedAt:      &now,
		LastLoggedInAt: &now,
	}

	if msg.UseHashid {
		if id, err := hashid.NewUUID(msg.Email); err == nil {
			user.ID = id
		}
	}

	created, err := e.users.Create(ctx, user)
	if err != nil {
		// A constraint violation surfacing after the pre-checks passed means
		// we lost a race; report it as the same friendly denial.
		switch {
		case IsUniqueViolation(err, "email"):
			return nil, ErrEmailTaken
		case IsUniqueViolation(err, "username"):
			return nil, ErrUsernameTaken
		}
		return nil, UpstreamError(err, "could not create user")
	}

	e.dispatchNotification(ctx, created.Username, created.Email, NotificationWelcome, nil)

	return created, nil
}

// FederatedSignIn logs in or creates the account bound to an external
// identity the provider has already verified. Concurrent first-time sign-ins
// with the same identity resolve to exactly one user: a unique-constraint
// violation during creation means someone else just created it, so we reload
// and proceed as a login.
func (e *RegistrationEngine) FederatedSignIn(ctx context.Context, identity ExternalIdentity) (*FederatedSignInResult, error) {
	if identity.Provider == "" || identity.ProviderUserID == "" {
		return nil, ErrMissingCredential
	}

	user, err := e.users.GetByFederated(ctx, identity.Provider, identity.ProviderUserID)
	if err == nil {
		return e.federatedLogin(ctx, user, false)
	}
	if !goerrors.IsNotFound(err) {
		return nil, UpstreamError(err, "federated lookup failed")
	}

	token, err := MintToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &User{
		APIToken:       token,
		CreatedAt:      &now,
		LastLoggedInAt: &now,
	}
	account := &FederatedAccount{
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
		Name:           identity.Name,
		Email:          identity.Email,
	}

	created, err := e.users.CreateWithFederated(ctx, record, account)
	if err != nil {
		if IsUniqueViolation(err, "provider") {
			existing, lookupErr := e.users.GetByFederated(ctx, identity.Provider, identity.ProviderUserID)
			if lookupErr != nil {
				return nil, UpstreamError(lookupErr, "federated reload after race failed")
			}
			return e.federatedLogin(ctx, existing, false)
		}
		return nil, UpstreamError(err, "could not create federated user")
	}

	if identity.Email != "" {
		e.dispatchNotification(ctx, identity.Name, identity.Email, NotificationWelcome, nil)
	}

	return e.federatedLogin(ctx, created, true)
}

func (e *RegistrationEngine) federatedLogin(ctx context.Context, user *User, isNew bool) (*FederatedSignInResult, error) {
	if user.Blocked {
		return nil, AccountSuspendedError(user.ID.String(), e.config.GetSupportEmail())
	}

	if err := e.users.TouchLogin(ctx, user); err != nil {
		return nil, UpstreamError(err, "failed to record login")
	}

	sessionID, err := e.issuer.MintSession(ctx, user.ID.String())
	if err != nil {
		return nil, err
	}

	return &FederatedSignInResult{User: user, SessionID: sessionID, IsNewUser: isNew}, nil
}

// dispatchNotification fires the notifier off the response path. If the
// request context is already cancelled the notification is skipped; delivery
// failures are logged by the notifier and here, never surfaced.
func (e *RegistrationEngine) dispatchNotification(ctx context.Context, name, email string, kind NotificationKind, data map[string]any) {
	if !e.config.GetNotificationsEnabled() {
		return
	}

	go func() {
		if err := e.notifier.Send(ctx, name, email, kind, data); err != nil {
			e.logger.Warn("notification dispatch failed: %v", err)
		}
	}()
}

func validateRegisterMessage(msg RegisterMessage) error {
	if msg.Username == "" || msg.Email == "" || msg.Password == "" || msg.ConfirmPassword == "" {
		return ErrMissingCredential
	}

	if msg.Password != msg.ConfirmPassword {
		return ErrConfirmationMismatch
	}

	if err := validation.Validate(msg.Email, is.Email); err != nil {
		return goerrors.New("email invalid", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidEmail).
			WithCode(goerrors.CodeBadRequest)
	}

	return nil
}
