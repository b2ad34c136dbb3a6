package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/core/common/validation"
	"github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/pkg/logger"
)

var ErrUserNotFound = errors.New("user not found")

type RepositoryAPI interface {
	GetByPhone(ctx context.Context, phone string) (*user.User, error)
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	Principal(ctx context.Context, claims *Claims) (*internal.User, error)
}

type Service struct {
	repo   RepositoryAPI
	tokens TokenGeneratorAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, tokens TokenGeneratorAPI, lg *slog.Logger) *Service {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	return &Service{repo: repo, tokens: tokens, logger: lg}
}

// Authenticate checks a phone number and password pair and issues tokens.
// Unknown numbers and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if appErr := dto.Validate(); appErr != nil {
		return AuthTokens{}, appErr
	}

	u, err := s.repo.GetByPhone(ctx, validation.NormalizePhone(dto.PhoneNumber))
	if errors.Is(err, ErrUserNotFound) {
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to load user", err)
	}

	if err := VerifyPassword(u.PasswordHash, dto.Password); err != nil {
		logger.FromOr(ctx, s.logger).Info("login rejected", "user_id", u.ID)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if !u.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	return s.issue(u)
}

// RefreshTokens reissues both tokens with the user's current role.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}
	u, err := s.activeUser(ctx, claims)
	if err != nil {
		return AuthTokens{}, err
	}
	return s.issue(u)
}

func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateAccessToken(tokenString)
}

// Principal resolves validated claims to the user attached to a request.
func (s *Service) Principal(ctx context.Context, claims *Claims) (*internal.User, error) {
	u, err := s.activeUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	return &internal.User{
		ID:          u.ID,
		PhoneNumber: u.PhoneNumber,
		Name:        u.Name,
		Role:        u.Role,
	}, nil
}

func (s *Service) activeUser(ctx context.Context, claims *Claims) (*user.User, error) {
	id, err := claims.ID()
	if err != nil {
		return nil, internal.ErrInvalidToken
	}
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, internal.ErrInvalidToken
	}
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if !u.IsActive {
		return nil, internal.ErrUserInactive
	}
	return u, nil
}

func (s *Service) issue(u *user.User) (AuthTokens, error) {
	access, err := s.tokens.GenerateAccessToken(u.ID, u.Role)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue token", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(u.ID, u.Role)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue token", err)
	}
	return AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
