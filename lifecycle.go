package authgate

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

const resetPasswordBytes = 12

// Lifecycle manages password reset, password change, and username change.
// Authenticated operations re-verify the current credential before mutating
// anything.
type Lifecycle struct {
	users    Users
	notifier Notifier
	config   Config
	logger   Logger
}

// NewLifecycle wires the manager to its collaborators.
func NewLifecycle(users Users, notifier Notifier, config Config) *Lifecycle {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Lifecycle{
		users:    users,
		notifier: notifier,
		config:   config,
		logger:   defLogger{},
	}
}

func (l *Lifecycle) WithLogger(logger Logger) *Lifecycle {
	l.logger = logger
	return l
}

// ResetPassword generates a fresh salt and a random password for the account
// matching the email (case-insensitive), persists them, and mails the new
// password out-of-band. The plaintext leaves scope as soon as the send is
// dispatched.
//
// Mailing a plaintext password with no reset-token flow reproduces the
// documented design; see DESIGN.md for the open question on replacing it
// with a token-based reset link.
func (l *Lifecycle) ResetPassword(ctx context.Context, email string) error {
	if email == "" {
		return ErrMissingCredential
	}

	user, err := l.users.GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrNoUser
		}
		return UpstreamError(err, "password reset lookup failed")
	}

	salt, err := NewSalt()
	if err != nil {
		return err
	}

	newPassword, err := RandomSecret(resetPasswordBytes)
	if err != nil {
		return err
	}

	hash, err := HashPassword(newPassword, salt)
	if err != nil {
		return err
	}

	user.Salt = salt
	user.PasswordHash = hash

	if _, err := l.users.Update(ctx, user); err != nil {
		return UpstreamError(err, "failed to persist password reset")
	}

	l.dispatchNotification(ctx, user.Username, user.Email, NotificationPasswordReset, map[string]any{
		"username": user.Username,
		"password": newPassword,
		"base_url": l.config.GetBaseURL(),
	})

	return nil
}

// ChangeUsername updates the username after re-verifying the current
// password against the stored hash.
func (l *Lifecycle) ChangeUsername(ctx context.Context, user *User, password, newUsername string) error {
	if password == "" || newUsername == "" {
		return ErrMissingCredential
	}

	if existing, err := l.users.GetByUsername(ctx, newUsername); err == nil {
		if existing.ID != user.ID {
			return ErrUsernameTaken
		}
	} else if !goerrors.IsNotFound(err) {
		return UpstreamError(err, "username collision check failed")
	}

	if !VerifyPassword(password, user.Salt, user.PasswordHash) {
		return ErrWrongPassword
	}

	user.Username = newUsername

	if _, err := l.users.Update(ctx, user); err != nil {
		if IsUniqueViolation(err, "username") {
			return ErrUsernameTaken
		}
		return UpstreamError(err, "failed to persist username change")
	}

	return nil
}

// ChangePassword replaces the password after verifying the old one. The salt
// is not rotated on password change in this design; the new hash is derived
// with the existing salt.
func (l *Lifecycle) ChangePassword(ctx context.Context, user *User, oldPassword, newPassword, confirmNewPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return ErrMissingCredential
	}

	if newPassword != confirmNewPassword {
		return ErrConfirmationMismatch
	}

	if !VerifyPassword(oldPassword, user.Salt, user.PasswordHash) {
		return ErrWrongPassword
	}

	hash, err := HashPassword(newPassword, user.Salt)
	if err != nil {
		return err
	}

	user.PasswordHash = hash

	if _, err := l.users.Update(ctx, user); err != nil {
		return UpstreamError(err, "failed to persist password change")
	}

	return nil
}

func (l *Lifecycle) dispatchNotification(ctx context.Context, name, email string, kind NotificationKind, data map[string]any) {
	if !l.config.GetNotificationsEnabled() {
		return
	}

	go func() {
		if err := l.notifier.Send(ctx, name, email, kind, data); err != nil {
			l.logger.Warn("notification dispatch failed: %v", err)
		}
	}()
}
