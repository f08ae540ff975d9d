package utils

import "golang.org/x/crypto/bcrypt"

// HashAdminKey returns the bcrypt hash of an admin key using the given cost.
func HashAdminKey(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyAdminKey safely compares a bcrypt hash and a presented key.  An empty
// hash never matches.
func VerifyAdminKey(hash, plain string) bool {
	if hash == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
