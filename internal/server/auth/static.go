package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

var ErrNoUsers = errors.New("no users configured")

// dummyHash is compared against for unknown owners so that a miss costs the
// same as a wrong secret.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("drive-unknown-owner"), bcrypt.MinCost)

// StaticProvider authenticates owners against a fixed table of bcrypt hashes.
type StaticProvider struct {
	users map[string]string
}

// NewStaticProvider builds a provider from an owner id -> bcrypt hash table.
func NewStaticProvider(users map[string]string) (*StaticProvider, error) {
	if len(users) == 0 {
		return nil, ErrNoUsers
	}
	return &StaticProvider{users: users}, nil
}

// LoadStaticProvider reads a JSON object of owner id -> bcrypt hash from path.
func LoadStaticProvider(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}
	var users map[string]string
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}
	return NewStaticProvider(users)
}

// Authenticate reports whether secret matches the stored hash for owner.
func (p *StaticProvider) Authenticate(owner, secret string) bool {
	hash, ok := p.users[owner]
	if !ok {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// HashSecret returns a bcrypt hash suitable for the users file.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}
