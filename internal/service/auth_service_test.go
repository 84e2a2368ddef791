package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arka-labs/academy-api/internal/models"
	"github.com/arka-labs/academy-api/pkg/config"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]models.User // keyed by email
	lastLogin map[string]time.Time
	tokens    map[string]models.RefreshToken // keyed by token value
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.users[email]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if m.lastLogin == nil {
		m.lastLogin = make(map[string]time.Time)
	}
	m.lastLogin[id] = ts
	return nil
}

func (m *mockUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.tokens == nil {
		m.tokens = make(map[string]models.RefreshToken)
	}
	m.tokens[token.Token] = *token
	return nil
}

func (m *mockUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.tokens[token]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for value, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
			m.tokens[value] = t
		}
	}
	return nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for value, t := range m.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			m.tokens[value] = t
		}
	}
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *mockUserRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &mockUserRepo{users: map[string]models.User{
		"admin@academy.test": {
			ID: "u1", Email: "admin@academy.test", PasswordHash: string(hash),
			FullName: "Admin User", Role: models.RoleAdmin, Active: true,
		},
		"inactive@academy.test": {
			ID: "u2", Email: "inactive@academy.test", PasswordHash: string(hash),
			FullName: "Former Admin", Role: models.RoleAdmin, Active: false,
		},
	}}
	svc := NewAuthService(repo, config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        time.Hour,
		RefreshExpiration: 30 * 24 * time.Hour,
		Issuer:            "academy-api",
	}, nil, nil)
	return svc, repo
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@academy.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.Contains(t, repo.lastLogin, "u1")

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "academy-api", claims.Issuer)
}

func TestLoginWrongPasswordAndUnknownEmailMatch(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, badPass := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@academy.test", Password: "wrong",
	})
	require.Error(t, badPass)

	_, badEmail := svc.Login(context.Background(), models.LoginRequest{
		Email: "ghost@academy.test", Password: "s3cret-pass",
	})
	require.Error(t, badEmail)

	// Same error either way, so the endpoint does not leak account existence.
	assert.Equal(t, appErrors.FromError(badPass).Code, appErrors.FromError(badEmail).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "inactive@academy.test", Password: "s3cret-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc, _ := newAuthFixture(t)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@academy.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc, repo := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@academy.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	other := NewAuthService(repo, config.JWTConfig{Secret: "other-secret", Expiration: time.Hour}, nil, nil)
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.ValidateToken("not.a.token")
	require.Error(t, err)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@academy.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)
	require.NotEmpty(t, login.RefreshToken)

	rotated, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	// The presented token was revoked during rotation.
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)
	assert.False(t, repo.tokens[rotated.RefreshToken].Revoked)

	claims, err := svc.ValidateToken(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
}

func TestRefreshReplayRevokesFamily(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@academy.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)

	// Replaying the already-used token fails and takes the live token with it.
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.True(t, repo.tokens[rotated.RefreshToken].Revoked)
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@academy.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "never-issued"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@academy.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "u1", login.RefreshToken))
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@academy.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), "u2", login.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.tokens[login.RefreshToken].Revoked)
}
