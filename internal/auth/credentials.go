package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	errMissingOwnerUsername = errors.New("owner username must be provided")
	errMissingPasswordHash  = errors.New("owner password hash must be provided")
)

// CredentialGateConfig describes the single owner account.
type CredentialGateConfig struct {
	Username     string
	PasswordHash []byte
	Logger       *zap.Logger
}

// CredentialGate checks the owner's username and bcrypt-hashed password.
type CredentialGate struct {
	username     string
	passwordHash []byte
	logger       *zap.Logger
}

func NewCredentialGate(cfg CredentialGateConfig) (*CredentialGate, error) {
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		return nil, errMissingOwnerUsername
	}
	if len(cfg.PasswordHash) == 0 {
		return nil, errMissingPasswordHash
	}
	if _, err := bcrypt.Cost(cfg.PasswordHash); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialGate{username: username, passwordHash: cfg.PasswordHash, logger: logger}, nil
}

// Subject is the token subject issued to the owner.
func (g *CredentialGate) Subject() string {
	return g.username
}

// Check reports whether username and password belong to the owner. The
// password hash is compared even on a username mismatch.
func (g *CredentialGate) Check(username, password string) bool {
	usernameMatches := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(g.username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password))
	if !usernameMatches || passwordErr != nil {
		g.logger.Warn("owner login rejected",
			zap.String("operation", "auth.credentials.check"),
			zap.Bool("username_matches", usernameMatches))
		return false
	}
	return true
}

// HashPassword returns a bcrypt hash suitable for auth.owner_password_hash.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}
