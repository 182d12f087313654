package authgate

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds gateway options. The notifications toggle replaces the
// environment flag the original deployment used to gate outbound email.
type Config interface {
	GetNotificationsEnabled() bool
	GetBaseURL() string
	GetSupportEmail() string
	GetSessionTTL() time.Duration
}

// SessionStore maps opaque session identifiers to user ids. Expiry policy
// belongs to the store, not the gateway.
type SessionStore interface {
	Save(ctx context.Context, sessionID, userID string, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// SessionBinder receives the advisory session binding token auth performs
// after a successful lookup. The binding is set-and-forget; token auth stays
// stateless per request.
type SessionBinder interface {
	BindUser(ctx context.Context, userID string)
}

// Notifier delivers out-of-band email. Implementations own retries and log
// their own failures; the gateway never blocks a response on delivery.
type Notifier interface {
	Send(ctx context.Context, recipientName, recipientEmail string, kind NotificationKind, data map[string]any) error
}

// NotificationKind selects the notification template.
type NotificationKind string

const (
	NotificationWelcome       NotificationKind = "welcome"
	NotificationPasswordReset NotificationKind = "password-reset"
)

// NoopNotifier drops every notification.
type NoopNotifier struct{}

func (NoopNotifier) Send(ctx context.Context, name, email string, kind NotificationKind, data map[string]any) error {
	return nil
}

// ConfigObject is a plain-struct Config for embedding and tests.
type ConfigObject struct {
	NotificationsEnabled bool
	BaseURL              string
	SupportEmail         string
	SessionTTL           time.Duration
}

func (c ConfigObject) GetNotificationsEnabled() bool { return c.NotificationsEnabled }
func (c ConfigObject) GetBaseURL() string            { return c.BaseURL }
func (c ConfigObject) GetSupportEmail() string       { return c.SupportEmail }
func (c ConfigObject) GetSessionTTL() time.Duration  { return c.SessionTTL }

var _ Config = ConfigObject{}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHGATE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHGATE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHGATE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHGATE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
