package authgate_test

import (
	"context"
	"time"

	authgate "github.com/goliatone/go-authgate"
	"github.com/stretchr/testify/mock"
)

// MockUsers implements authgate.Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetByID(ctx context.Context, id string) (*authgate.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*authgate.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*authgate.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*authgate.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByUsername(ctx context.Context, username string) (*authgate.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*authgate.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByFederated(ctx context.Context, provider, providerUserID string) (*authgate.User, error) {
	args := m.Called(ctx, provider, providerUserID)
	user, _ := args.Get(0).(*authgate.User)
	return user, args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, record *authgate.User) (*authgate.User, error) {
	args := m.Called(ctx, record)
	user, _ := args.Get(0).(*authgate.User)
	return user, args.Error(1)
}

func (m *MockUsers) CreateWithFederated(ctx context.Context, record *authgate.User, account *authgate.FederatedAccount) (*authgate.User, error) {
	args := m.Called(ctx, record, account)
	user, _ := args.Get(0).(*authgate.User)
	return user, args.Error(1)
}

func (m *MockUsers) Update(ctx context.Context, record *authgate.User) (*authgate.User, error) {
	args := m.Called(ctx, record)
	user, _ := args.Get(0).(*authgate.User)
	return user, args.Error(1)
}

func (m *MockUsers) TouchLogin(ctx context.Context, user *authgate.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) LinkFederated(ctx context.Context, account *authgate.FederatedAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// MockNotifier implements authgate.Notifier and records deliveries on a
// channel so tests can wait for fire-and-forget dispatches.
type MockNotifier struct {
	Sent chan SentNotification
	Err  error
}

type SentNotification struct {
	Name  string
	Email string
	Kind  authgate.NotificationKind
	Data  map[string]any
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Sent: make(chan SentNotification, 8)}
}

func (m *MockNotifier) Send(ctx context.Context, name, email string, kind authgate.NotificationKind, data map[string]any) error {
	m.Sent <- SentNotification{Name: name, Email: email, Kind: kind, Data: data}
	return m.Err
}

func testConfig() authgate.ConfigObject {
	return authgate.ConfigObject{
		NotificationsEnabled: true,
		BaseURL:              "https://app.example.com",
		SupportEmail:         "support@example.com",
		SessionTTL:           time.Hour,
	}
}
