package guardian_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-guardian"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testCode = "123456"

type accountFixture struct {
	store   *guardian.BunAccountStore
	codes   *memoryCodes
	notes   *notifications
	sink    *recordingSink
	service *guardian.AccountService
}

func newAccountFixture(t *testing.T, opts ...guardian.AccountServiceOption) *accountFixture {
	t.Helper()
	clock := newTestClock()
	f := &accountFixture{
		store: newSQLiteStore(t, clock.Now),
		codes: newMemoryCodes(testCode),
		notes: &notifications{},
		sink:  &recordingSink{},
	}
	base := []guardian.AccountServiceOption{
		guardian.WithOneTimeCodes(f.codes, f.notes),
		guardian.WithAccountActivitySink(f.sink),
		guardian.WithAccountClock(clock.Now),
	}
	f.service = guardian.NewAccountService(f.store, newTestHasher(), append(base, opts...)...)
	return f
}

func registration(email, username string) guardian.RegisterAccountMessage {
	return guardian.RegisterAccountMessage{
		Email:           email,
		Username:        username,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	}
}

func TestAccountService_Register(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t)

	account, err := f.service.Register(ctx, registration("  Alice@Example.com ", "alice"))
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "alice@example.com", account.Email)
	assert.Equal(t, newTestHasher().Hash(testPassword), account.PasswordHash)
	assert.Equal(t, guardian.AccountStateActive, guardian.StateOf(account))
	assert.Equal(t, []guardian.ActivityEventType{guardian.ActivityEventAccountCreated}, f.sink.Types())
	assert.Zero(t, f.notes.Count(), "no confirmation code without confirmation enabled")

	_, err = f.service.Register(ctx, registration("alice@example.com", "other"))
	assert.True(t, guardian.IsKind(err, guardian.KindConflict))
}

func TestAccountService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t)

	tests := []struct {
		name  string
		msg   guardian.RegisterAccountMessage
		field string
	}{
		{
			name:  "no identity",
			msg:   registration("", ""),
			field: "identity",
		},
		{
			name:  "username shaped like an email",
			msg:   registration("", "root@example.com"),
			field: "username",
		},
		{
			name:  "username shaped like a mobile",
			msg:   registration("", "+12015550123"),
			field: "username",
		},
		{
			name:  "bad email",
			msg:   registration("not-an-email", ""),
			field: "email",
		},
		{
			name: "weak password",
			msg: guardian.RegisterAccountMessage{
				Username: "alice", Password: "password", ConfirmPassword: "password",
			},
			field: "password",
		},
		{
			name: "passwords differ",
			msg: guardian.RegisterAccountMessage{
				Username: "alice", Password: testPassword, ConfirmPassword: testPassword + "x",
			},
			field: "confirm_password",
		},
		{
			name: "bad mobile",
			msg: guardian.RegisterAccountMessage{
				Mobile: "12345", Password: testPassword, ConfirmPassword: testPassword,
			},
			field: "mobile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Register(ctx, tt.msg)
			require.Error(t, err)
			assert.True(t, guardian.IsKind(err, guardian.KindValidation), "got %v", err)
			assert.Contains(t, guardian.ValidationFields(err), tt.field)
		})
	}
}

func TestAccountService_RegisterNormalizesMobile(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t)

	account, err := f.service.Register(ctx, guardian.RegisterAccountMessage{
		Mobile:          "(201) 555-0123",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "+12015550123", account.Mobile)

	found, err := f.service.Find(ctx, "201-555-0123")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
}

func TestAccountService_DeterministicIDs(t *testing.T) {
	ctx := context.Background()
	first := newAccountFixture(t, guardian.WithDeterministicIDs(true))
	second := newAccountFixture(t, guardian.WithDeterministicIDs(true))

	a, err := first.service.Register(ctx, registration("alice@example.com", ""))
	require.NoError(t, err)
	b, err := second.service.Register(ctx, registration("alice@example.com", ""))
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
}

func TestAccountService_Available(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t)
	_, err := f.service.Register(ctx, registration("alice@example.com", "alice"))
	require.NoError(t, err)

	free, err := f.service.Available(ctx, guardian.AvailabilityMessage{Identity: "alice"})
	require.NoError(t, err)
	assert.False(t, free)

	free, err = f.service.Available(ctx, guardian.AvailabilityMessage{Identity: "bob"})
	require.NoError(t, err)
	assert.True(t, free)

	_, err = f.service.Available(ctx, guardian.AvailabilityMessage{Identity: " "})
	assert.True(t, guardian.IsKind(err, guardian.KindValidation))
}

func TestAccountService_EmailConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t, guardian.WithEmailConfirmation(true))

	account, err := f.service.Register(ctx, registration("alice@example.com", "alice"))
	require.NoError(t, err)
	assert.Equal(t, guardian.AccountStatePendingEmailConfirmation, guardian.StateOf(account))
	assert.Equal(t, 1, f.notes.Count())

	err = f.service.ConfirmEmail(ctx, guardian.ConfirmEmailMessage{Identity: "alice", Code: "000000"})
	assert.True(t, guardian.IsKind(err, guardian.KindValidation))

	require.NoError(t, f.service.ConfirmEmail(ctx, guardian.ConfirmEmailMessage{Identity: "alice", Code: testCode}))

	stored, err := f.store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, guardian.AccountStateActive, guardian.StateOf(stored))

	err = f.service.ConfirmEmail(ctx, guardian.ConfirmEmailMessage{Identity: "alice", Code: testCode})
	assert.True(t, guardian.IsKind(err, guardian.KindConflict))

	assert.Contains(t, f.sink.Types(), guardian.ActivityEventEmailConfirmed)
}

func TestAccountService_ResendConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t, guardian.WithEmailConfirmation(true))
	_, err := f.service.Register(ctx, registration("alice@example.com", ""))
	require.NoError(t, err)

	require.NoError(t, f.service.ResendConfirmation(ctx, "alice@example.com"))
	assert.Equal(t, 2, f.notes.Count())

	require.NoError(t, f.service.ResendConfirmation(ctx, "nobody@example.com"))
	assert.Equal(t, 2, f.notes.Count())
}

func TestAccountService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t)
	account, err := f.service.Register(ctx, registration("alice@example.com", "alice"))
	require.NoError(t, err)
	_, err = f.store.RequireNewPassword(ctx, account.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.RequestPasswordReset(ctx, guardian.InitializePasswordResetMessage{Identity: "alice"}))
	assert.Equal(t, 1, f.notes.Count())

	require.NoError(t, f.service.RequestPasswordReset(ctx, guardian.InitializePasswordResetMessage{Identity: "nobody"}),
		"unknown identities do not leak")
	assert.Equal(t, 1, f.notes.Count())

	newPassword := "N3w-Passw0rd!"
	reset := guardian.FinalizePasswordResetMessage{
		Identity:        "alice",
		Code:            "999999",
		Password:        newPassword,
		ConfirmPassword: newPassword,
	}
	err = f.service.ResetPassword(ctx, reset)
	assert.True(t, guardian.IsKind(err, guardian.KindValidation))

	reset.Code = testCode
	require.NoError(t, f.service.ResetPassword(ctx, reset))

	stored, err := f.store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, newTestHasher().Hash(newPassword), stored.PasswordHash)
	assert.False(t, stored.RequireNewPassword)

	err = f.service.ResetPassword(ctx, reset)
	assert.True(t, guardian.IsKind(err, guardian.KindValidation), "codes are single use")

	reset.Identity = "nobody"
	err = f.service.ResetPassword(ctx, reset)
	assert.True(t, guardian.IsKind(err, guardian.KindValidation))

	assert.Equal(t, []guardian.ActivityEventType{
		guardian.ActivityEventAccountCreated,
		guardian.ActivityEventPasswordResetRequested,
		guardian.ActivityEventPasswordReset,
	}, f.sink.Types())
}

func TestAccountService_ResetWithoutCodes(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t, newTestClock().Now)
	service := guardian.NewAccountService(store, newTestHasher())
	_, err := service.Register(ctx, registration("alice@example.com", ""))
	require.NoError(t, err)

	require.NoError(t, service.RequestPasswordReset(ctx, guardian.InitializePasswordResetMessage{Identity: "alice@example.com"}))

	err = service.ResetPassword(ctx, guardian.FinalizePasswordResetMessage{
		Identity: "alice@example.com", Code: testCode, Password: testPassword, ConfirmPassword: testPassword,
	})
	assert.True(t, guardian.IsKind(err, guardian.KindInternal))
}

func TestAccountService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t)
	account, err := f.service.Register(ctx, registration("alice@example.com", ""))
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, guardian.SystemActor, account.ID, false))
	_, err = f.service.Find(ctx, "alice@example.com")
	assert.True(t, guardian.IsKind(err, guardian.KindNotFound))

	err = f.service.Delete(ctx, guardian.SystemActor, account.ID, false)
	assert.True(t, guardian.IsKind(err, guardian.KindNotFound))
	assert.Contains(t, f.sink.Types(), guardian.ActivityEventAccountDeleted)
}

func TestAccountService_StoreFailure(t *testing.T) {
	ctx := context.Background()
	store := new(MockAccountStore)
	down := guardian.NewInternalError(errors.New("connection refused"), "failed to read account")
	store.On("FindByIdentity", mock.Anything, "alice").Return(nil, down)

	service := guardian.NewAccountService(store, newTestHasher())
	_, err := service.Available(ctx, guardian.AvailabilityMessage{Identity: "alice"})
	assert.True(t, guardian.IsKind(err, guardian.KindInternal))
	store.AssertExpectations(t)
}

func TestAccountService_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := new(MockAccountStore)
	service := guardian.NewAccountService(store, newTestHasher())

	_, err := service.Register(ctx, registration("alice@example.com", ""))
	assert.Error(t, err)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
