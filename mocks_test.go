package guardian_test

import (
	"context"

	"github.com/goliatone/go-guardian"
	"github.com/stretchr/testify/mock"
)

// MockAccountStore implements guardian.AccountStore
type MockAccountStore struct {
	mock.Mock
}

var _ guardian.AccountStore = (*MockAccountStore)(nil)

func accountArg(args mock.Arguments) *guardian.Account {
	if a, ok := args.Get(0).(*guardian.Account); ok {
		return a
	}
	return nil
}

func (m *MockAccountStore) FindByIdentity(ctx context.Context, identity string) (*guardian.Account, error) {
	args := m.Called(ctx, identity)
	return accountArg(args), args.Error(1)
}

func (m *MockAccountStore) FindByID(ctx context.Context, id string) (*guardian.Account, error) {
	args := m.Called(ctx, id)
	return accountArg(args), args.Error(1)
}

func (m *MockAccountStore) Create(ctx context.Context, cmd guardian.CreateAccountCommand) (*guardian.Account, error) {
	args := m.Called(ctx, cmd)
	return accountArg(args), args.Error(1)
}

func (m *MockAccountStore) Lock(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) Unlock(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) Delete(ctx context.Context, id string, hard bool) (bool, error) {
	args := m.Called(ctx, id, hard)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) RequireNewPassword(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) SetPassword(ctx context.Context, id, passwordHash string) (bool, error) {
	args := m.Called(ctx, id, passwordHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) ConfirmEmail(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) TrackLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAccountStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTokenVerifier implements guardian.TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(token string) (*guardian.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*guardian.Claims)
	return claims, args.Error(1)
}
