// Package auth issues and validates the JWT bearer tokens used by both
// the REST endpoints and the socket handshake.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chathub-io/chathub/internal/config"
	"github.com/chathub-io/chathub/internal/models"
	"github.com/chathub-io/chathub/internal/repo/mongodb"
)

type Service struct {
	users     mongodb.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewService(users mongodb.UserRepository, conf *config.Config) *Service {
	return &Service{
		users:     users,
		jwtSecret: []byte(conf.Auth.JWTSecret),
		tokenTTL:  conf.Auth.TokenTTL,
	}
}

// Login finds or creates the user for the given email and hands back a
// signed token. First login provisions the account with the mailbox
// name as username.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, models.ErrNotFound) {
		user = &models.User{
			Username: usernameFromEmail(req.Email),
			Email:    req.Email,
			IsActive: true,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	if !user.IsActive {
		user.IsActive = true
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("reactivate user: %w", err)
		}
	}

	token, expiresAt, err := s.issue(user)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

// ValidateToken parses a bearer token and loads its user. Deactivated
// accounts fail validation even with an unexpired token.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*models.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, models.ErrUnauthorized
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("token user: %w", err)
	}
	if !user.IsActive {
		return nil, models.ErrUnauthorized
	}
	return user, nil
}

func (s *Service) issue(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)

	claims := jwt.MapClaims{
		"user_id": user.ID.Hex(),
		"email":   user.Email,
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func usernameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
