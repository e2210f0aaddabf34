package guardian

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// PasswordHasher turns a plaintext password into a digest. Implementations
// must be deterministic so that verification is a digest comparison.
type PasswordHasher interface {
	Hash(plaintext string) string
}

// Argon2Params tunes the argon2i key derivation
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Params are used when NewArgon2Hasher gets no params
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  32 * 1024,
	Threads: 4,
	KeyLen:  32,
}

// Argon2Hasher hashes passwords with argon2i and a static, configured salt.
type Argon2Hasher struct {
	salt   []byte
	params Argon2Params
}

// NewArgon2Hasher returns a hasher bound to salt. Zero fields in params fall
// back to DefaultArgon2Params.
func NewArgon2Hasher(salt string, params ...Argon2Params) *Argon2Hasher {
	p := DefaultArgon2Params
	if len(params) > 0 {
		p = mergeArgon2Params(p, params[0])
	}
	return &Argon2Hasher{
		salt:   []byte(salt),
		params: p,
	}
}

// Hash returns the lowercase hex argon2i digest of plaintext
func (h *Argon2Hasher) Hash(plaintext string) string {
	key := argon2.Key([]byte(plaintext), h.salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return hex.EncodeToString(key)
}

// passwordMatches re-hashes plaintext and compares digests in constant time.
// The hash runs even when digest is empty so a missing password costs the
// same as a wrong one.
func passwordMatches(hasher PasswordHasher, plaintext, digest string) bool {
	candidate := hasher.Hash(plaintext)
	if digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(digest)) == 1
}

func mergeArgon2Params(base, override Argon2Params) Argon2Params {
	if override.Time > 0 {
		base.Time = override.Time
	}
	if override.Memory > 0 {
		base.Memory = override.Memory
	}
	if override.Threads > 0 {
		base.Threads = override.Threads
	}
	if override.KeyLen > 0 {
		base.KeyLen = override.KeyLen
	}
	return base
}
