package cryptstream

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// MinSaltSize is the minimum acceptable salt length in bytes
const MinSaltSize = 8

// DeriveParams contains parameters for PBKDF2-SHA256 key derivation
type DeriveParams struct {
	Iterations int // Number of iterations (minimum 1; 120,000 recommended)
	KeySize    int // Derived key size in bytes (minimum 1)
}

// Validate checks if the derivation parameters are valid
func (p DeriveParams) Validate() error {
	if p.Iterations < 1 {
		return newArgumentError("iterations", p.Iterations, "iteration count must be at least 1")
	}
	if p.KeySize < 1 {
		return newArgumentError("key_size", p.KeySize, "key size must be at least 1 byte")
	}
	return nil
}

// GenerateSalt generates a fresh random salt from a cryptographically
// secure source. Salts must never be reused across encryptions.
func GenerateSalt(size int) ([]byte, error) {
	if size < MinSaltSize {
		return nil, newArgumentError("salt_size", size, "salt must be at least 8 bytes")
	}

	salt := make([]byte, size)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// GenerateIV generates a fresh random initialization vector sized to the
// cipher's block size. IVs must never be reused under the same key.
func GenerateIV(size int) ([]byte, error) {
	if size < 1 {
		return nil, newArgumentError("iv_size", size, "iv size must be at least 1 byte")
	}

	iv := make([]byte, size)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}
	return iv, nil
}

// deriveKey stretches the password into key material on a worker goroutine
// so a caller driving a cooperative scheduler is never blocked on the
// CPU-bound derivation. Derivation itself is not cancellable; if the
// context expires mid-derivation the worker is joined before the result is
// wiped and the context error returned, so the password bytes are never
// scrubbed while still in use.
func deriveKey(ctx context.Context, password, salt []byte, params DeriveParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(salt) < MinSaltSize {
		return nil, newArgumentError("salt", len(salt), "salt must be at least 8 bytes")
	}

	done := make(chan struct{})
	var key []byte

	go func() {
		defer close(done)
		key = pbkdf2.Key(password, salt, params.Iterations, params.KeySize, sha256.New)
	}()

	select {
	case <-done:
		return key, nil
	case <-ctx.Done():
		<-done
		Zero(key)
		return nil, fmt.Errorf("key derivation: %w", ctx.Err())
	}
}
