package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type authServiceMock struct {
	registered   models.RegisterRequest
	loggedOut    string
	logoutUser   string
	changeUserID string
	err          error
}

func (m *authServiceMock) Register(_ context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	m.registered = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh", User: models.UserInfo{ID: "u1"}}, nil
}

func (m *authServiceMock) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *authServiceMock) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{}, m.err
}

func (m *authServiceMock) Logout(_ context.Context, refreshToken, userID, _, _ string) error {
	m.loggedOut, m.logoutUser = refreshToken, userID
	return m.err
}

func (m *authServiceMock) Me(_ context.Context, userID string) (*models.User, error) {
	return &models.User{ID: userID, Email: "ada@example.com"}, m.err
}

func (m *authServiceMock) ChangePassword(_ context.Context, userID string, _ models.ChangePasswordRequest) error {
	m.changeUserID = userID
	return m.err
}

func TestAuthHandlerRegisterCaptures(t *testing.T) {
	mock := &authServiceMock{}
	handler := NewAuthHandler(mock)

	c, w := newGinContext(http.MethodPost, "/auth/register", mustJSON(t, map[string]string{
		"email": "ada@example.com", "password": "secret1", "fullName": "Ada",
	}))
	c.Request.Header.Set("User-Agent", "go-test")
	handler.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ada@example.com", mock.registered.Email)
	assert.Equal(t, "go-test", mock.registered.UserAgent)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"accessToken":"access"`)
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{err: appErrors.ErrInvalidCredentials})

	c, w := newGinContext(http.MethodPost, "/auth/login", mustJSON(t, map[string]string{"email": "ada@example.com", "password": "nope"}))
	handler.Login(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, decodeEnvelope(t, w).Error.Code)
}

func TestAuthHandlerLoginMalformedBody(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{})

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte("{"))
	handler.Login(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}

func TestAuthHandlerLogoutUsesCaller(t *testing.T) {
	mock := &authServiceMock{}
	handler := NewAuthHandler(mock)

	c, w := newGinContext(http.MethodPost, "/auth/logout", mustJSON(t, map[string]string{"refreshToken": "rt-1"}))
	withUser(c, "u1", models.RoleStudent)
	handler.Logout(c)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "rt-1", mock.loggedOut)
	assert.Equal(t, "u1", mock.logoutUser)
}

func TestAuthHandlerMeRequiresUser(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{})

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	handler.Me(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
