package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yunzhijiao/bridge/internal/auth/domain"
	"github.com/yunzhijiao/bridge/internal/auth/password"
	"github.com/yunzhijiao/bridge/internal/auth/repository"
	"github.com/yunzhijiao/bridge/internal/clock"
	"github.com/yunzhijiao/bridge/internal/config"
	pkgdb "github.com/yunzhijiao/bridge/pkg/db"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	gdb, err := pkgdb.NewTest()
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&domain.User{}, &domain.Session{}))

	genID, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	repo, sessionRepo := repository.New(gdb)
	svc := New(zaptest.NewLogger(t), config.Config{SessionTTLHours: 72}, repo, sessionRepo, genID, clk)
	return svc, clk
}

func TestCreateUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "zhangsan",
		Password: "secret-123",
		Email:    "ZhangSan@Example.edu",
	})
	require.NoError(t, err)
	assert.Equal(t, "zhangsan", user.Username)
	assert.Equal(t, "zhangsan@example.edu", user.Email)
	assert.Equal(t, "zhangsan", user.DisplayName)
	assert.True(t, user.Active)
	require.NotNil(t, user.PasswordHash)
	assert.True(t, password.Verify("secret-123", *user.PasswordHash))

	_, err = svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "zhangsan",
		Password: "another-pass",
	})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	_, err = svc.CreateUser(ctx, domain.CreateUserRequest{Username: "short", Password: "12345"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.CreateUser(ctx, domain.CreateUserRequest{Username: "", Password: "secret-123"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "bademail",
		Password: "secret-123",
		Email:    "not an email",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLoginByUsernameAndEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "zhangsan",
		Password: "secret-123",
		Email:    "zhangsan@example.edu",
	})
	require.NoError(t, err)

	result, err := svc.Login(ctx, domain.LoginRequest{Identifier: "zhangsan", Password: "secret-123"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RawToken)
	assert.Equal(t, "zhangsan", result.Session.Metadata["username"])

	result, err = svc.Login(ctx, domain.LoginRequest{Identifier: "ZhangSan@Example.edu", Password: "secret-123"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RawToken)

	_, err = svc.Login(ctx, domain.LoginRequest{Identifier: "zhangsan", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, domain.LoginRequest{Identifier: "nobody", Password: "secret-123"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthenticateSessionLifecycle(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "zhangsan",
		Password: "secret-123",
	})
	require.NoError(t, err)

	result, err := svc.Login(ctx, domain.LoginRequest{Identifier: "zhangsan", Password: "secret-123"})
	require.NoError(t, err)

	session, err := svc.Authenticate(ctx, result.RawToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)

	// A bogus token never resolves.
	_, err = svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	// Expiry is driven by the clock.
	clk.Advance(73 * time.Hour)
	_, err = svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "zhangsan",
		Password: "secret-123",
	})
	require.NoError(t, err)
	result, err := svc.Login(ctx, domain.LoginRequest{Identifier: "zhangsan", Password: "secret-123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, result.RawToken))

	_, err = svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, domain.ErrSessionRevoked)

	assert.ErrorIs(t, svc.Logout(ctx, ""), domain.ErrInvalidSession)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, domain.CreateUserRequest{
		Username: "zhangsan",
		Password: "secret-123",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "short"), domain.ErrInvalidCredentials)
	require.NoError(t, svc.ChangePassword(ctx, user.ID, "new-secret-456"))

	_, err = svc.Login(ctx, domain.LoginRequest{Identifier: "zhangsan", Password: "secret-123"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, domain.LoginRequest{Identifier: "zhangsan", Password: "new-secret-456"})
	assert.NoError(t, err)

	updated, err := svc.CurrentUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsDefault)
	assert.NotNil(t, updated.LastPasswordChanged)

	assert.ErrorIs(t, svc.ChangePassword(ctx, snowflake.ID(999), "whatever-pass"), domain.ErrUserNotFound)
}
