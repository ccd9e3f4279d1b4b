package utils

import "golang.org/x/crypto/bcrypt"

// Local-account password storage. OAuth users have no password hash at all,
// so CheckPassword fails closed for them (bcrypt rejects an empty hash).

// HashPassword derives the bcrypt hash stored in users.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
