package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Admin holds the single configured admin identity. Only a bcrypt hash of
// the password is kept in memory.
type Admin struct {
	username string
	hash     []byte
}

// NewAdmin hashes password and returns the admin identity.
func NewAdmin(username, password string) (*Admin, error) {
	if username == "" || password == "" {
		return nil, errors.New("admin username and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing admin password: %w", err)
	}
	return &Admin{username: username, hash: hash}, nil
}

// NewAdminFromHash returns the admin identity for a precomputed bcrypt hash.
func NewAdminFromHash(username, hash string) (*Admin, error) {
	if username == "" {
		return nil, errors.New("admin username required")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid admin password hash: %w", err)
	}
	return &Admin{username: username, hash: []byte(hash)}, nil
}

// Check reports whether the credentials match the admin identity.
func (a *Admin) Check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	return userOK && passOK
}
