package config

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credential is a username and its password. An empty password means the
// account logs in with USER alone.
//
// Password holds either plain text or a bcrypt hash ("$2a$", "$2b$" or
// "$2y$" prefix).
type Credential struct {
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"password"`
}

// RequiresPassword reports whether a PASS step follows USER.
func (c Credential) RequiresPassword() bool {
	return c.Password != ""
}

// Verify checks password against the stored secret.
func (c Credential) Verify(password string) bool {
	if isBcryptHash(c.Password) {
		return bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
}

// HashPassword returns a bcrypt hash suitable for the password field.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
