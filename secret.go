package cryptstream

import (
	"context"
	"crypto/rand"
	"fmt"
	"runtime"
)

// Zero overwrites a byte slice with zeros. Used to wipe key material and
// decoded passwords before their backing memory is released.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// Secret is a protected in-memory password representation. The password
// bytes are XOR-masked with a random pad so no contiguous plaintext copy
// exists outside the scope of key derivation. The caller owns the Secret
// and should Destroy it when the password is no longer needed.
type Secret struct {
	mask      []byte
	masked    []byte
	destroyed bool
}

// NewSecret creates a protected secret from the given password. The input
// slice is copied; the caller remains responsible for wiping its own copy.
func NewSecret(password []byte) (*Secret, error) {
	if password == nil {
		return nil, newArgumentError("password", nil, "password cannot be nil")
	}

	mask := make([]byte, len(password))
	if _, err := rand.Read(mask); err != nil {
		return nil, fmt.Errorf("generating secret mask: %w", err)
	}

	masked := make([]byte, len(password))
	for i := range password {
		masked[i] = password[i] ^ mask[i]
	}

	return &Secret{mask: mask, masked: masked}, nil
}

// Len returns the password length in bytes
func (s *Secret) Len() int {
	return len(s.masked)
}

// Destroy wipes the protected representation. The Secret is unusable
// afterwards; derivation attempts fail with ErrSecretDestroyed.
func (s *Secret) Destroy() {
	Zero(s.mask)
	Zero(s.masked)
	s.destroyed = true
}

// byteAt decodes a single password byte without materializing the whole
// plaintext
func (s *Secret) byteAt(i int) byte {
	return s.masked[i] ^ s.mask[i]
}

// secretBuffer holds the transient decoded password for the duration of one
// key derivation. The buffer is best-effort pinned so it is not paged out,
// and is zero-filled on every exit path before the pin is released.
type secretBuffer struct {
	buf    []byte
	pinned bool
}

// newSecretBuffer allocates and pins a buffer of the given size. Pinning
// failures are not fatal; the scrub-on-release guarantee does not depend
// on the pin.
func newSecretBuffer(size int) *secretBuffer {
	sb := &secretBuffer{buf: make([]byte, size)}
	sb.pinned = pinMemory(sb.buf) == nil
	return sb
}

// destroy zero-fills the buffer and then releases the pin. Safe to call
// more than once.
func (sb *secretBuffer) destroy() {
	Zero(sb.buf)
	if sb.pinned {
		unpinMemory(sb.buf)
		sb.pinned = false
	}
}

// decodeSecret copies the protected secret into a fresh pinned buffer one
// byte at a time, checking for cancellation before each byte. On
// cancellation whatever was decoded so far is scrubbed before the error
// propagates.
func decodeSecret(ctx context.Context, secret *Secret) (*secretBuffer, error) {
	if secret == nil {
		return nil, newArgumentError("secret", nil, ErrNilSecret.Error())
	}
	if secret.destroyed {
		return nil, newArgumentError("secret", nil, ErrSecretDestroyed.Error())
	}

	sb := newSecretBuffer(secret.Len())
	for i := 0; i < secret.Len(); i++ {
		select {
		case <-ctx.Done():
			sb.destroy()
			return nil, fmt.Errorf("decoding secret: %w", ctx.Err())
		default:
		}
		sb.buf[i] = secret.byteAt(i)
	}

	return sb, nil
}

// deriveSecretKey turns a protected secret into derived key material. The
// decoded password lives only for the duration of the derivation and is
// scrubbed on success, error, and cancellation alike. Derivation runs on a
// worker goroutine (see deriveKey); cancellation is checked per decoded
// byte and once more before derivation starts.
func deriveSecretKey(ctx context.Context, secret *Secret, salt []byte, params DeriveParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(salt) < MinSaltSize {
		return nil, newArgumentError("salt", len(salt), "salt must be at least 8 bytes")
	}

	sb, err := decodeSecret(ctx, secret)
	if err != nil {
		return nil, err
	}
	defer sb.destroy()

	// Derivation is not internally cancellable; last chance to bail out
	// before committing the CPU.
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("key derivation: %w", ctx.Err())
	default:
	}

	return deriveKey(ctx, sb.buf, salt, params)
}
