package service

import (
	"context"
	"testing"
	"time"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/arangkita/arang-chat/internal/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testJWTManager() *security.JWTManager {
	return security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute, 7*24*time.Hour)
}

func userRow(id uuid.UUID, email, password, displayName string, role domain.Role) gateway.Row {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := domain.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	return u.Row()
}

func TestRegisterCreatesCustomer(t *testing.T) {
	gw := new(MockGateway)
	svc := NewAuthService(gw, testJWTManager())

	gw.On("Find", mock.Anything, usersTable, gateway.Filter{"email": "budi@arangkita.id"}, (*gateway.Order)(nil), 1).
		Return([]gateway.Row{}, nil)
	gw.On("Insert", mock.Anything, usersTable, mock.Anything).
		Return(gateway.Row{"id": uuid.NewString()}, nil)

	user, err := svc.Register(context.Background(), domain.UserCreate{
		Email:       "budi@arangkita.id",
		Password:    "rahasia-banget",
		DisplayName: "Budi",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, user.Role)
	assert.Equal(t, "Budi", user.DisplayName)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "rahasia-banget", user.PasswordHash)
	gw.AssertExpectations(t)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	gw := new(MockGateway)
	svc := NewAuthService(gw, testJWTManager())

	gw.On("Find", mock.Anything, usersTable, mock.Anything, (*gateway.Order)(nil), 1).
		Return([]gateway.Row{{"id": uuid.NewString()}}, nil)

	_, err := svc.Register(context.Background(), domain.UserCreate{
		Email:       "budi@arangkita.id",
		Password:    "rahasia-banget",
		DisplayName: "Budi",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRejectedInsert(t *testing.T) {
	gw := new(MockGateway)
	svc := NewAuthService(gw, testJWTManager())

	gw.On("Find", mock.Anything, usersTable, mock.Anything, (*gateway.Order)(nil), 1).
		Return([]gateway.Row{}, nil)
	gw.On("Insert", mock.Anything, usersTable, mock.Anything).
		Return(nil, nil)

	_, err := svc.Register(context.Background(), domain.UserCreate{
		Email:       "budi@arangkita.id",
		Password:    "rahasia-banget",
		DisplayName: "Budi",
	})
	assert.Error(t, err)
}

func TestLoginSuccess(t *testing.T) {
	gw := new(MockGateway)
	jwtManager := testJWTManager()
	svc := NewAuthService(gw, jwtManager)

	userID := uuid.New()
	gw.On("Find", mock.Anything, usersTable, gateway.Filter{"email": "budi@arangkita.id"}, (*gateway.Order)(nil), 1).
		Return([]gateway.Row{userRow(userID, "budi@arangkita.id", "rahasia-banget", "Budi", domain.RoleCustomer)}, nil)

	pair, err := svc.Login(context.Background(), domain.UserLogin{
		Email:    "budi@arangkita.id",
		Password: "rahasia-banget",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := jwtManager.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "customer", claims.Role)
	assert.Equal(t, "Budi", claims.DisplayName)
}

func TestLoginWrongPassword(t *testing.T) {
	gw := new(MockGateway)
	svc := NewAuthService(gw, testJWTManager())

	gw.On("Find", mock.Anything, usersTable, mock.Anything, (*gateway.Order)(nil), 1).
		Return([]gateway.Row{userRow(uuid.New(), "budi@arangkita.id", "rahasia-banget", "Budi", domain.RoleCustomer)}, nil)

	_, err := svc.Login(context.Background(), domain.UserLogin{
		Email:    "budi@arangkita.id",
		Password: "salah",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	gw := new(MockGateway)
	svc := NewAuthService(gw, testJWTManager())

	gw.On("Find", mock.Anything, usersTable, mock.Anything, (*gateway.Order)(nil), 1).
		Return([]gateway.Row{}, nil)

	_, err := svc.Login(context.Background(), domain.UserLogin{
		Email:    "tidak-ada@arangkita.id",
		Password: "apapun",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRoundTrip(t *testing.T) {
	gw := new(MockGateway)
	jwtManager := testJWTManager()
	svc := NewAuthService(gw, jwtManager)

	userID := uuid.New()
	refreshToken, err := jwtManager.GenerateRefreshToken(userID)
	require.NoError(t, err)

	gw.On("Find", mock.Anything, usersTable, gateway.Filter{"id": userID.String()}, (*gateway.Order)(nil), 1).
		Return([]gateway.Row{userRow(userID, "sari@arangkita.id", "pw-admin-sari", "Sari", domain.RoleAdmin)}, nil)

	pair, err := svc.Refresh(context.Background(), refreshToken)
	require.NoError(t, err)

	claims, err := jwtManager.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
}

func TestRefreshInvalidToken(t *testing.T) {
	gw := new(MockGateway)
	svc := NewAuthService(gw, testJWTManager())

	_, err := svc.Refresh(context.Background(), "not-a-token")
	assert.Error(t, err)
}
