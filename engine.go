package cryptstream

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Engine orchestrates one streaming encryption or decryption operation. It
// owns the cipher capability exclusively and releases it on Close; the
// source and destination streams are borrowed and never closed.
//
// An Engine instance runs one operation at a time. Counters and timers are
// scoped to the running operation, so a single instance can be reused for
// sequential operations.
type Engine struct {
	cipher BlockCipher
	src    io.Reader
	dst    io.Writer
	secret *Secret
	cfg    *Config
	id     uuid.UUID

	active bool
	closed bool
}

// NewEngine creates an engine from a cipher capability, borrowed source and
// destination streams, and a protected secret. A nil cfg selects
// DefaultConfig. All validation happens here, before any I/O.
func NewEngine(cipher BlockCipher, src io.Reader, dst io.Writer, secret *Secret, cfg *Config) (*Engine, error) {
	if cipher == nil {
		return nil, newArgumentError("cipher", nil, ErrNilCipher.Error())
	}
	if src == nil {
		return nil, newArgumentError("source", nil, ErrNilSource.Error())
	}
	if dst == nil {
		return nil, newArgumentError("destination", nil, ErrNilDestination.Error())
	}
	if secret == nil {
		return nil, newArgumentError("secret", nil, ErrNilSecret.Error())
	}
	if secret.destroyed {
		return nil, newArgumentError("secret", nil, ErrSecretDestroyed.Error())
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		cipher: cipher,
		src:    src,
		dst:    dst,
		secret: secret,
		cfg:    cfg,
		id:     uuid.New(),
	}, nil
}

// ID returns the engine's identifier, included in operation errors so
// callers running several engines can correlate failures
func (e *Engine) ID() string {
	return e.id.String()
}

// Close releases the cipher capability. The borrowed streams are left
// untouched.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.cipher.Close()
}

// Encrypt consumes the entire source stream and writes the encrypted
// container to the destination: a version 1 header followed by the cipher
// transform's output. Salt and IV are freshly generated per call; reusing
// either across encryptions under the same key would be a correctness
// violation, so they are never cached.
func (e *Engine) Encrypt(ctx context.Context) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()

	salt, err := GenerateSalt(e.cfg.SaltSize)
	if err != nil {
		return e.operr("encrypt", err)
	}

	key, err := deriveSecretKey(ctx, e.secret, salt, DeriveParams{
		Iterations: e.cfg.Iterations,
		KeySize:    e.keySize(),
	})
	if err != nil {
		return e.operr("encrypt", err)
	}
	defer Zero(key)

	if err := e.cipher.SetKey(key); err != nil {
		return e.operr("encrypt", err)
	}

	iv, err := GenerateIV(e.cipher.BlockSize())
	if err != nil {
		return e.operr("encrypt", err)
	}
	if err := e.cipher.SetIV(iv); err != nil {
		return e.operr("encrypt", err)
	}

	// The header must be fully written before the first ciphertext byte
	header := NewFileHeader(int32(e.cfg.Iterations), salt, iv)
	if _, err := header.WriteTo(e.dst); err != nil {
		return e.operr("encrypt", err)
	}

	transform, err := e.cipher.Encrypter(e.dst)
	if err != nil {
		return e.operr("encrypt", err)
	}

	if err := e.pump(ctx, transform); err != nil {
		return e.operr("encrypt", err)
	}

	if err := transform.Close(); err != nil {
		return e.operr("encrypt", err)
	}
	return nil
}

// Decrypt parses the container header from the source, derives the key
// using the persisted salt and iteration count, and streams the recovered
// plaintext to the destination. Header validation completes before the
// CPU-heavy derivation starts, so malformed input fails fast. A failed
// final-block check surfaces as a DecryptionError.
func (e *Engine) Decrypt(ctx context.Context) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()

	version, err := ReadVersion(e.src)
	if err != nil {
		return e.operr("decrypt", err)
	}
	if version != Version1 {
		return e.operr("decrypt", newFormatError("version",
			fmt.Errorf("version %d: %w", version, ErrUnsupportedVersion)))
	}

	header, err := ReadHeaderV1(e.src)
	if err != nil {
		return e.operr("decrypt", err)
	}

	if err := e.cipher.SetIV(header.IV); err != nil {
		return e.operr("decrypt", err)
	}

	key, err := deriveSecretKey(ctx, e.secret, header.Salt, DeriveParams{
		Iterations: int(header.Iterations),
		KeySize:    e.keySize(),
	})
	if err != nil {
		return e.operr("decrypt", err)
	}
	defer Zero(key)

	if err := e.cipher.SetKey(key); err != nil {
		return e.operr("decrypt", err)
	}

	transform, err := e.cipher.Decrypter(e.dst)
	if err != nil {
		return e.operr("decrypt", err)
	}

	if err := e.pump(ctx, transform); err != nil {
		return e.operr("decrypt", err)
	}

	if err := transform.Close(); err != nil {
		return e.operr("decrypt", err)
	}
	return nil
}

// pump moves the remainder of the source stream through the transform in
// fixed-size chunks, feeding the progress meter as it goes. Cancellation is
// checked once per chunk; the chunk size has no on-disk effect.
func (e *Engine) pump(ctx context.Context, transform io.Writer) error {
	meter := newProgressMeter(e.cfg.Progress, e.cfg.ProgressInterval)
	buf := make([]byte, e.cfg.ChunkSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := e.src.Read(buf)
		if n > 0 {
			if _, werr := transform.Write(buf[:n]); werr != nil {
				return werr
			}
			meter.Add(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}
	}

	meter.Finish()
	return nil
}

// begin marks the engine busy for the duration of one operation
func (e *Engine) begin() (func(), error) {
	if e.closed {
		return nil, ErrEngineClosed
	}
	if e.active {
		return nil, ErrOperationActive
	}
	e.active = true
	return func() { e.active = false }, nil
}

// keySize resolves the derived key length, deferring to the cipher
// capability unless the config overrides it
func (e *Engine) keySize() int {
	if e.cfg.KeySize > 0 {
		return e.cfg.KeySize
	}
	return e.cipher.KeySize()
}

// operr annotates an operation failure with the engine ID. Argument,
// format, and decryption errors pass through unwrapped checks via
// errors.As; the annotation only wraps.
func (e *Engine) operr(op string, err error) error {
	return fmt.Errorf("%s %s: %w", op, e.id, err)
}
