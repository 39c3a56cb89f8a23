package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Config holds API login settings
type Config struct {
	Enabled   bool
	Username  string
	Password  string // plaintext or bcrypt hash
	JWTSecret string
	JWTExpiry time.Duration
}

// Authenticator checks the single configured API user
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	jwtManager   *JWTManager
}

// NewAuthenticator creates an authenticator. Plaintext passwords are hashed once.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	username := cfg.Username
	if username == "" {
		username = "admin"
	}

	var passwordHash []byte
	if cfg.Enabled && cfg.Password != "" {
		if isBcryptHash(cfg.Password) {
			passwordHash = []byte(cfg.Password)
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, err
			}
			passwordHash = hash
		}
	}

	jwtManager, err := NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		enabled:      cfg.Enabled,
		username:     username,
		passwordHash: passwordHash,
		jwtManager:   jwtManager,
	}, nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a JWT and its expiry (unix seconds)
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}

	if subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) != 1 || len(a.passwordHash) == 0 {
		return "", 0, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(username)
	if err != nil {
		return "", 0, err
	}

	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a JWT
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}

// HashPassword creates a bcrypt hash suitable for auth.password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
