// Package auth turns a per-user secret into a signed session token and back into a caller id.
// Secrets are handed out by carousing-cli and only their bcrypt hashes are stored.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	userDb "github.com/bloops-games/carousing/internal/database/user/database"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "carousing"

var (
	ErrUnauthorized = fmt.Errorf("unauthorized")
	ErrNoSigningKey = fmt.Errorf("auth signing key is empty")
)

type Config struct {
	SigningKey string        `envconfig:"CAROUSING_AUTH_SIGNING_KEY"`
	TokenTTL   time.Duration `envconfig:"CAROUSING_AUTH_TOKEN_TTL" default:"12h"`
}

type Secrets interface {
	SecretHash(userID string) (string, error)
}

func New(config *Config, secrets Secrets) (*Authenticator, error) {
	if config.SigningKey == "" {
		return nil, ErrNoSigningKey
	}

	ttl := config.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	return &Authenticator{
		key:     []byte(config.SigningKey),
		ttl:     ttl,
		secrets: secrets,
		now:     time.Now,
	}, nil
}

type Authenticator struct {
	key     []byte
	ttl     time.Duration
	secrets Secrets
	now     func() time.Time
}

// NewSecret returns a fresh random secret for a user.
func NewSecret() string {
	return uuid.NewString()
}

func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// Login checks the secret against the stored hash and issues a token for userID.
func (a *Authenticator) Login(ctx context.Context, userID, secret string) (string, error) {
	logger := logging.FromContext(ctx).Named("auth.Login")

	hash, err := a.secrets.SecretHash(userID)
	if err != nil {
		if errors.Is(err, userDb.ErrNotFound) {
			logger.Debugf("no secret for %s", userID)
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("secret hash: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		logger.Infof("wrong secret for %s", userID)
		return "", ErrUnauthorized
	}

	return a.Issue(userID)
}

func (a *Authenticator) Issue(userID string) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	})

	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the user id a valid token was issued for.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrUnauthorized
	}

	return claims.Subject, nil
}
