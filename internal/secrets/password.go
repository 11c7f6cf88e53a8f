// Package secrets holds the credential primitives of the gateway: password
// hashing, TOTP verification and opaque token generation. Interpretation of
// credential payloads lives here so the configuration provider stays free of
// crypto details.
package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

type argon2idParams struct {
	time        uint32
	memoryKiB   uint32
	parallelism uint8
	keyLen      uint32
}

func defaultArgon2idParams() argon2idParams {
	return argon2idParams{
		time:        1,
		memoryKiB:   64 * 1024,
		parallelism: 4,
		keyLen:      32,
	}
}

const saltLen = 16

// HashPassword derives an argon2id hash of password and returns it in PHC
// string format, suitable for storage in a password credential record.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	p := defaultArgon2idParams()
	key := argon2.IDKey([]byte(password), salt, p.time, p.memoryKiB, p.parallelism, p.keyLen)

	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memoryKiB, p.time, p.parallelism,
		enc.EncodeToString(salt), enc.EncodeToString(key)), nil
}

// VerifyPassword reports whether password matches the PHC-encoded argon2id
// hash. The comparison is constant-time.
func VerifyPassword(password, encodedHash string) (bool, error) {
	salt, expected, p, err := parseEncodedHash(encodedHash)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), salt, p.time, p.memoryKiB, p.parallelism, p.keyLen)
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func parseEncodedHash(encoded string) ([]byte, []byte, argon2idParams, error) {
	var p argon2idParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, p, fmt.Errorf("malformed argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, p, fmt.Errorf("malformed argon2id version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, p, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memoryKiB, &p.time, &p.parallelism); err != nil {
		return nil, nil, p, fmt.Errorf("malformed argon2id parameters: %w", err)
	}

	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[4])
	if err != nil {
		return nil, nil, p, fmt.Errorf("malformed argon2id salt: %w", err)
	}
	key, err := enc.DecodeString(parts[5])
	if err != nil {
		return nil, nil, p, fmt.Errorf("malformed argon2id key: %w", err)
	}
	p.keyLen = uint32(len(key))

	return salt, key, p, nil
}
