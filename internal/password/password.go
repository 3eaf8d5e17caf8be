// Package password provides one-way password hashing and verification.
package password

import "golang.org/x/crypto/bcrypt"

const hashCost = 10

// Hash returns the bcrypt hash of a plaintext password. It is invoked
// whenever a user's password is set or changed, never on unchanged
// passwords.
func Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), hashCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether the plaintext password matches the stored hash.
func Verify(plaintext, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}
