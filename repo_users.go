package authgate

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the repository contract the gateway consumes. Implementations
// must enforce uniqueness on username, email, api_token, and the federated
// (provider, provider_user_id) pair; the gateway treats those constraints as
// authoritative and translates violations into typed denials.
type Users interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByFederated(ctx context.Context, provider, providerUserID string) (*User, error)

	Create(ctx context.Context, record *User) (*User, error)
	CreateWithFederated(ctx context.Context, record *User, account *FederatedAccount) (*User, error)
	Update(ctx context.Context, record *User) (*User, error)
	TouchLogin(ctx context.Context, user *User) error

	LinkFederated(ctx context.Context, account *FederatedAccount) error
}

type users struct {
	db *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository returns a Bun-backed Users repository.
func NewUsersRepository(db *bun.DB) Users {
	return &users{db: db}
}

func (a *users) GetByID(ctx context.Context, id string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapLookupError(err, map[string]any{"id": id})
	}
	return record, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("lower(?TableAlias.email) = lower(?)", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapLookupError(err, map[string]any{"email": email})
	}
	return record, nil
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", username).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapLookupError(err, map[string]any{"username": username})
	}
	return record, nil
}

func (a *users) GetByFederated(ctx context.Context, provider, providerUserID string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Join("JOIN federated_accounts AS fed ON fed.user_id = ?TableAlias.id").
		Where("fed.provider = ? AND fed.provider_user_id = ?", provider, providerUserID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapLookupError(err, map[string]any{
			"provider":         provider,
			"provider_user_id": providerUserID,
		})
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	prepareUserDefaults(record)

	if _, err := a.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// CreateWithFederated persists a new user and its federated binding in one
// transaction. A user write is all-or-nothing; a unique violation on the
// (provider, provider_user_id) pair rolls the user back too.
func (a *users) CreateWithFederated(ctx context.Context, record *User, account *FederatedAccount) (*User, error) {
	prepareUserDefaults(record)
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
		account.UserID = record.ID
		_, err := tx.NewInsert().Model(account).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Update persists the record and bumps the version counter so clients can
// detect that their cached view went stale. The bump happens on the record
// itself; mixing model columns with raw Set expressions would make bun write
// only the Set clauses and drop every field change.
func (a *users) Update(ctx context.Context, record *User) (*User, error) {
	record.Version++

	res, err := a.db.NewUpdate().
		Model(record).
		WherePK().
		ExcludeColumn("id", "created_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		record.Version--
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		record.Version--
		return nil, recordNotFound(map[string]any{"id": record.ID.String()})
	}

	return record, nil
}

func (a *users) TouchLogin(ctx context.Context, user *User) error {
	now := time.Now()
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("last_loggedin_at = ?", now).
		Set("version = version + 1").
		Where("?TableAlias.id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	user.LastLoggedInAt = &now
	return nil
}

func (a *users) LinkFederated(ctx context.Context, account *FederatedAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	_, err := a.db.NewInsert().Model(account).Exec(ctx)
	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Email = strings.ToLower(record.Email)

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}

func wrapLookupError(err error, meta map[string]any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return recordNotFound(meta)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "user lookup failed")
}

func recordNotFound(meta map[string]any) *goerrors.Error {
	return goerrors.New("record not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(meta)
}

// IsUniqueViolation reports whether err is a repository unique-constraint
// violation on the given column. Driver error texts differ; SQLite and
// Postgres are covered.
func IsUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") &&
		!strings.Contains(msg, "duplicate key value violates unique constraint") {
		return false
	}

	return column == "" || strings.Contains(msg, column)
}
