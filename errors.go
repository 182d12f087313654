package authgate

import (
	goerrors "github.com/goliatone/go-errors"
)

// Stable machine-checkable codes carried by every denial.
const (
	TextCodeMissingCredential    = "MISSING_CREDENTIAL"
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeNoUser               = "NO_USER"
	TextCodeNoSession            = "NO_SESSION"
	TextCodeAccountSuspended     = "ACCOUNT_SUSPENDED"
	TextCodeEmailTaken           = "EMAIL_TAKEN"
	TextCodeUsernameTaken        = "USERNAME_TAKEN"
	TextCodeWrongPassword        = "WRONG_PASSWORD"
	TextCodeConfirmationMismatch = "CONFIRMATION_MISMATCH"
	TextCodeInvalidEmail         = "INVALID_EMAIL"
	TextCodeUpstreamFailure      = "UPSTREAM_FAILURE"
)

// ErrMissingCredential is returned when a required credential field is absent
// from the request.
var ErrMissingCredential = goerrors.New("you must include a token and uid (user id) in your request", goerrors.CategoryBadInput).
	WithTextCode(TextCodeMissingCredential).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials deliberately does not reveal whether the identifier
// or the password was wrong.
var ErrInvalidCredentials = goerrors.New("username or password incorrect, usernames are case-sensitive", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials)

// ErrNoUser is the lookup miss for strategies where identity is not
// secrecy-sensitive (token auth, session auth).
var ErrNoUser = goerrors.New("no user found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoUser).
	WithCode(goerrors.CodeNotFound)

// ErrNoSession is returned when no session is bound to the request.
var ErrNoSession = goerrors.New("you must be logged in", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSession)

// ErrEmailTaken signals an email uniqueness violation.
var ErrEmailTaken = goerrors.New("email already taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrUsernameTaken signals a username uniqueness violation.
var ErrUsernameTaken = goerrors.New("username already taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeConflict)

// ErrWrongPassword is the re-verification failure during lifecycle
// operations, where the caller is already authenticated.
var ErrWrongPassword = goerrors.New("incorrect password", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongPassword)

// ErrConfirmationMismatch is returned when new/confirm password fields differ.
var ErrConfirmationMismatch = goerrors.New("password and confirmation don't match", goerrors.CategoryValidation).
	WithTextCode(TextCodeConfirmationMismatch).
	WithCode(goerrors.CodeBadRequest)

// AccountSuspendedError reports a blocked account. Suspension is account
// level policy, not secrecy-sensitive, so it is always reported distinctly
// and carries the user id for support follow-up.
func AccountSuspendedError(userID, supportEmail string) *goerrors.Error {
	msg := "account has been suspended, please contact " + supportEmail +
		" with your UUID (" + userID + ") for assistance"
	return goerrors.New(msg, goerrors.CategoryAuth).
		WithTextCode(TextCodeAccountSuspended).
		WithMetadata(map[string]any{"user_id": userID})
}

// UpstreamError wraps repository or notifier failures as a generic server
// error; internals never leak to the caller.
func UpstreamError(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeUpstreamFailure)
}

// HasTextCode reports whether err carries the given denial code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}
