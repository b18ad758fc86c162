// Package auth checks the opaque admin key presented as a bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoAdminKey      = errors.New("admin key is not configured")
	ErrInvalidAdminKey = errors.New("invalid admin key")
)

// AdminKey verifies presented credentials against either the plain secret or
// a bcrypt hash of it. The hash wins when both are configured.
type AdminKey struct {
	plain []byte
	hash  []byte
}

func NewAdminKey(plain, bcryptHash string) (*AdminKey, error) {
	plain = strings.TrimSpace(plain)
	bcryptHash = strings.TrimSpace(bcryptHash)
	if bcryptHash != "" {
		if _, err := bcrypt.Cost([]byte(bcryptHash)); err != nil {
			return nil, fmt.Errorf("parse admin key hash: %w", err)
		}
		return &AdminKey{hash: []byte(bcryptHash)}, nil
	}
	if plain == "" {
		return nil, ErrNoAdminKey
	}
	return &AdminKey{plain: []byte(plain)}, nil
}

// Verify returns nil when token matches. An empty token never matches.
func (k *AdminKey) Verify(token string) error {
	if k == nil || token == "" {
		return ErrInvalidAdminKey
	}
	if k.hash != nil {
		if err := bcrypt.CompareHashAndPassword(k.hash, []byte(token)); err != nil {
			return ErrInvalidAdminKey
		}
		return nil
	}
	if subtle.ConstantTimeCompare(k.plain, []byte(token)) != 1 {
		return ErrInvalidAdminKey
	}
	return nil
}

// HashAdminKey produces the value for CMS_ADMIN_KEY_BCRYPT.
func HashAdminKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrNoAdminKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin key: %w", err)
	}
	return string(hash), nil
}
