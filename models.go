package authgate

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account aggregate. A user carries at least one credential
// binding after creation: a local username/email/password or one or more
// federated accounts. APIToken is minted once at creation and never rotated
// here. Version increments on every update so clients can detect staleness
// of their cached view.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Version        int64      `bun:"version,notnull,default:0" json:"version"`
	Username       string     `bun:"username,nullzero,unique" json:"username,omitempty"`
	Email          string     `bun:"email,nullzero,unique" json:"email,omitempty"`
	Salt           string     `bun:"salt" json:"-"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	APIToken       string     `bun:"api_token,notnull,unique" json:"api_token,omitempty"`
	Blocked        bool       `bun:"blocked,notnull,default:false" json:"blocked,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	LastLoggedInAt *time.Time `bun:"last_loggedin_at,nullzero" json:"last_loggedin_at,omitempty"`
}

// HasLocalCredentials reports whether the user can authenticate with a
// username/email and password.
func (u *User) HasLocalCredentials() bool {
	return u.PasswordHash != "" && u.Salt != ""
}

// FederatedAccount binds a provider-asserted external identity to a user.
// The (provider, provider_user_id) pair is unique across all accounts.
type FederatedAccount struct {
	bun.BaseModel  `bun:"table:federated_accounts,alias:fed"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID         uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Provider       string     `bun:"provider,notnull,unique:provider_subject" json:"provider,omitempty"`
	ProviderUserID string     `bun:"provider_user_id,notnull,unique:provider_subject" json:"provider_user_id,omitempty"`
	Name           string     `bun:"name" json:"name,omitempty"`
	Email          string     `bun:"email" json:"email,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// ExternalIdentity is the tuple an identity provider adapter hands the
// gateway once it has verified the federated exchange. The gateway trusts it
// completely and performs no additional verification.
type ExternalIdentity struct {
	Provider       string         `json:"provider"`
	ProviderUserID string         `json:"provider_user_id"`
	Name           string         `json:"name,omitempty"`
	Email          string         `json:"email,omitempty"`
	Claims         map[string]any `json:"claims,omitempty"`
}
