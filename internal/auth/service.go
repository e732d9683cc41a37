package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jmougeot/alarm-server/internal/store"
)

// TokenPair is what Register and Login hand back to a caller: a short-lived
// access token plus a long-lived, rotating refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Argon2Params configures password hashing cost. Held on the Service rather
// than hardcoded so operators can tune it without a code change.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Service implements registration, login and token refresh against a Store
// and a Valkey-backed refresh token set. It holds no session state of its
// own — the gateway's Hub and SessionRegistry are a separate concern entirely.
type Service struct {
	store           store.Store
	rdb             *redis.Client
	jwtSecret       string
	jwtIssuer       string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	argon2          Argon2Params
}

// NewService wires a Service to its Store, Valkey client, and token settings.
func NewService(st store.Store, rdb *redis.Client, jwtSecret, jwtIssuer string, accessTTL, refreshTTL time.Duration, argon2 Argon2Params) *Service {
	return &Service{
		store:           st,
		rdb:             rdb,
		jwtSecret:       jwtSecret,
		jwtIssuer:       jwtIssuer,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		argon2:          argon2,
	}
}

// Register validates the credentials, hashes the password, and creates a new
// user. Returns ErrUsernameAlreadyTaken if the username is in use.
func (s *Service) Register(ctx context.Context, username, password string) (store.User, TokenPair, error) {
	if err := ValidateUsername(username); err != nil {
		return store.User{}, TokenPair{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return store.User{}, TokenPair{}, err
	}

	hash, err := HashPassword(password, s.argon2.Memory, s.argon2.Iterations, s.argon2.Parallelism, s.argon2.SaltLength, s.argon2.KeyLength)
	if err != nil {
		return store.User{}, TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, hash)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return store.User{}, TokenPair{}, ErrUsernameAlreadyTaken
		}
		return store.User{}, TokenPair{}, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return store.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Login verifies credentials and issues a fresh token pair. Returns
// ErrInvalidCredentials for both an unknown username and a wrong password, so
// the two cases are indistinguishable to a caller.
func (s *Service) Login(ctx context.Context, username, password string) (store.User, TokenPair, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return store.User{}, TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	match, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return store.User{}, TokenPair{}, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return store.User{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return store.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token and issues a new access token alongside it.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	newRefresh, userID, err := RotateRefreshToken(ctx, s.rdb, refreshToken, s.refreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}

	access, err := NewAccessToken(userID, s.jwtSecret, s.accessTokenTTL, s.jwtIssuer)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: newRefresh}, nil
}

// Logout revokes every outstanding refresh token for the user, forcing
// re-authentication on every device, the caller's own included.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	return RevokeAllRefreshTokens(ctx, s.rdb, userID)
}

func (s *Service) issueTokens(ctx context.Context, userID uuid.UUID) (TokenPair, error) {
	access, err := NewAccessToken(userID, s.jwtSecret, s.accessTokenTTL, s.jwtIssuer)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := CreateRefreshToken(ctx, s.rdb, userID, s.refreshTokenTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
