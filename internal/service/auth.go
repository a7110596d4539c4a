package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/arangkita/arang-chat/internal/security"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const usersTable = "users"

var (
	// ErrEmailTaken is returned when registering an already-known email
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned on any login failure
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AuthService handles authentication operations
type AuthService struct {
	gw         gateway.Gateway
	jwtManager *security.JWTManager
}

// NewAuthService creates a new auth service
func NewAuthService(gw gateway.Gateway, jwtManager *security.JWTManager) *AuthService {
	return &AuthService{
		gw:         gw,
		jwtManager: jwtManager,
	}
}

// Register creates a new customer account. Admin accounts are provisioned
// out of band.
func (s *AuthService) Register(ctx context.Context, input domain.UserCreate) (*domain.User, error) {
	rows, err := s.gw.Find(ctx, usersTable, gateway.Filter{"email": input.Email}, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if len(rows) > 0 {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		DisplayName:  input.DisplayName,
		Role:         domain.RoleCustomer,
		CreatedAt:    time.Now().UTC(),
	}

	inserted, err := s.gw.Insert(ctx, usersTable, user.Row())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if inserted == nil {
		return nil, errors.New("user row was rejected by the store")
	}

	return user, nil
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, input domain.UserLogin) (*domain.TokenPair, error) {
	rows, err := s.gw.Find(ctx, usersTable, gateway.Filter{"email": input.Email}, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrInvalidCredentials
	}
	user, err := domain.UserFromRow(rows[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.tokenPair(user)
}

// Refresh refreshes the access token using a refresh token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	userID, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, errors.New("invalid refresh token")
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, errors.New("user not found")
	}

	return s.tokenPair(user)
}

// GetUserByID retrieves a user by ID, or nil when unknown
func (s *AuthService) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	rows, err := s.gw.Find(ctx, usersTable, gateway.Filter{"id": userID.String()}, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return domain.UserFromRow(rows[0])
}

func (s *AuthService) tokenPair(user *domain.User) (*domain.TokenPair, error) {
	accessToken, refreshToken, expiresIn, err := s.jwtManager.GenerateTokenPair(user.ID, string(user.Role), user.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}
	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}
