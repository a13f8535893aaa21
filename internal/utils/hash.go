package utils

import (
	"errors"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

const hashCost = 12

// bcrypt hashes look like $2a$12$... ; clients occasionally submit one of
// these instead of a plaintext password, which would get double-hashed and
// lock them out.
var bcryptPattern = regexp.MustCompile(`^\$2[aby]\$\d{2}\$`)

// ErrLooksHashed is returned when the supplied password already looks like a
// bcrypt digest.
var ErrLooksHashed = errors.New("password appears to be already hashed")

// HashPassword returns a bcrypt hash of the provided password.
func HashPassword(password string) (string, error) {
	if bcryptPattern.MatchString(password) {
		return "", ErrLooksHashed
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	return string(bytes), err
}

// CheckPassword compares a bcrypt hashed password with its possible plaintext
// equivalent. Returns false when no hash is stored.
func CheckPassword(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
