package auth

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

// HashPassword hashes an account password with argon2id. Called when an
// account is created: Service.Register, alarmctl's user create, and
// bootstrap.RunFirstInit.
func HashPassword(password string, memory, iterations uint32, parallelism uint8, saltLen, keyLen uint32) (string, error) {
	hash, err := argon2id.CreateHash(password, &argon2id.Params{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: parallelism,
		SaltLength:  saltLen,
		KeyLength:   keyLen,
	})
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// VerifyPassword checks a login attempt's plaintext password against the
// account's stored argon2id hash.
func VerifyPassword(password, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	return match, nil
}

// NeedsRehash reports whether hash was produced with argon2id parameters,
// salt length or key length that differ from the given ones. Service.Login
// does not call it; a stored hash is not upgraded on login.
func NeedsRehash(hash string, memory, iterations uint32, parallelism uint8, saltLen, keyLen uint32) bool {
	params, salt, key, err := argon2id.DecodeHash(hash)
	if err != nil {
		// An undecodable hash can't be compared; treat it as not needing rehash
		// rather than forcing a rehash path that would just fail the same way.
		return false
	}
	return params.Memory != memory ||
		params.Iterations != iterations ||
		params.Parallelism != parallelism ||
		uint32(len(salt)) != saltLen ||
		uint32(len(key)) != keyLen
}
