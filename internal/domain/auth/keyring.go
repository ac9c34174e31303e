// Package auth validates API keys presented to the admin API.
//
// Keys are configured as hashes, never plaintext. Both SHA-256
// ("sha256:<hex>" or bare 64-char hex) and Argon2id (PHC format)
// hashes are accepted so operators can migrate gradually.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when an API key does not match any configured hash.
var ErrInvalidKey = errors.New("invalid api key")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// KeyEntry is one configured API key: an operator-visible label plus the
// stored hash of the raw key.
type KeyEntry struct {
	Label string
	Hash  string
}

// Keyring validates raw API keys against a fixed set of configured hashes.
type Keyring struct {
	// sha256Index maps SHA-256 hex digests to labels for O(1) lookup.
	sha256Index map[string]string
	// argonKeys must be verified one by one; each Validate call costs
	// one Argon2id derivation per entry, so keep this list short.
	argonKeys []KeyEntry
}

// NewKeyring builds a Keyring from configured entries.
// Entries with unrecognized hash formats are rejected up front so a typo in
// the config fails at startup rather than silently locking the key out.
func NewKeyring(entries []KeyEntry) (*Keyring, error) {
	kr := &Keyring{sha256Index: make(map[string]string, len(entries))}
	for _, e := range entries {
		switch DetectHashType(e.Hash) {
		case "sha256":
			digest := strings.TrimPrefix(e.Hash, "sha256:")
			kr.sha256Index[strings.ToLower(digest)] = e.Label
		case "argon2id":
			kr.argonKeys = append(kr.argonKeys, e)
		default:
			return nil, fmt.Errorf("api key %q: %w", e.Label, ErrUnknownHashType)
		}
	}
	return kr, nil
}

// Empty reports whether no keys are configured.
func (k *Keyring) Empty() bool {
	return len(k.sha256Index) == 0 && len(k.argonKeys) == 0
}

// Validate checks a raw key and returns the label of the matching entry.
// Returns ErrInvalidKey if no configured hash matches.
func (k *Keyring) Validate(rawKey string) (string, error) {
	// Fast path: direct SHA-256 lookup.
	if label, ok := k.sha256Index[HashKey(rawKey)]; ok {
		return label, nil
	}

	// Slow path: verify against each Argon2id hash.
	for _, e := range k.argonKeys {
		match, err := VerifyKey(rawKey, e.Hash)
		if err != nil {
			continue
		}
		if match {
			return e.Label, nil
		}
	}

	return "", ErrInvalidKey
}

// HashKey returns the SHA-256 hex hash of the raw key.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams defines OWASP minimum parameters for Argon2id.
// Memory: 46 MiB, Iterations: 1, Parallelism: 1
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format.
// The hash includes a random salt and uses OWASP minimum parameters.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the hash algorithm used for a stored hash.
// Returns "argon2id" for PHC format, "sha256" for prefixed or bare hex,
// "unknown" for unrecognized formats.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	// Bare SHA-256 hex is exactly 64 hex characters
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey verifies a raw key against a stored hash.
// Supports Argon2id (PHC format), SHA-256 prefixed, and bare SHA-256 hex.
// Returns (true, nil) if match, (false, nil) if no match,
// (false, ErrUnknownHashType) for unrecognized hash formats.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		match, err := safeArgon2idCompare(rawKey, storedHash)
		if err != nil {
			return false, err
		}
		return match, nil

	case "sha256":
		expectedHash := strings.TrimPrefix(storedHash, "sha256:")
		computedHash := HashKey(rawKey)
		// Constant-time comparison to prevent timing attacks
		match := subtle.ConstantTimeCompare([]byte(computedHash), []byte(strings.ToLower(expectedHash))) == 1
		return match, nil

	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic recovery.
// The underlying argon2 library panics on malformed Argon2id hashes with invalid
// parameters (e.g., t=0 rounds, p=0 parallelism). This function catches those
// panics and converts them to errors so VerifyKey never panics.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
