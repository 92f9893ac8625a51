package password

import "golang.org/x/crypto/bcrypt"

// Hash returns the bcrypt hash of a plaintext password.
func Hash(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// Check reports whether plain matches the stored bcrypt hash. The comparison
// is constant-time inside bcrypt; the plaintext is never logged or retained.
func Check(plain string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}
