package cryptstream

import (
	"io"
	"time"
)

// Default configuration constants. Chunk size and progress interval are
// purely local performance parameters; iterations and salt size are
// persisted in the container header.
const (
	// DefaultIterations is the default PBKDF2 iteration count
	DefaultIterations = 120000

	// DefaultSaltSize is the default salt length in bytes
	DefaultSaltSize = 16

	// DefaultChunkSize is the default I/O chunk size (128 KiB)
	DefaultChunkSize = 128 * 1024

	// DefaultProgressInterval is the default progress throttle interval
	DefaultProgressInterval = 250 * time.Millisecond
)

// BlockCipher is the injected cipher capability. It exposes a forward and a
// reverse streaming transform plus the key and block geometry the engine
// needs to derive keys and size IVs. Implementations are exclusively owned
// by one engine and released through Close.
type BlockCipher interface {
	// KeySize returns the required key length in bytes
	KeySize() int

	// BlockSize returns the cipher block size in bytes
	BlockSize() int

	// SetKey installs the symmetric key
	SetKey(key []byte) error

	// SetIV installs the initialization vector for the next transform
	SetIV(iv []byte) error

	// Encrypter returns a forward transform writing ciphertext to dst.
	// Close flushes any buffered data, including the final padding block.
	Encrypter(dst io.Writer) (io.WriteCloser, error)

	// Decrypter returns a reverse transform writing plaintext to dst.
	// Close verifies the final block; a failed check reports a
	// DecryptionError.
	Decrypter(dst io.Writer) (io.WriteCloser, error)

	// Close releases the capability and wipes its key material
	Close() error
}

// ProgressSnapshot reports cumulative operation progress. BytesPerSecond is
// the cumulative average throughput since operation start, not an
// instantaneous rate.
type ProgressSnapshot struct {
	ProcessedBytes uint64
	BytesPerSecond float64
}

// ProgressFunc receives throttled progress events. Callbacks are invoked
// synchronously from the operation and must not re-enter the same engine.
type ProgressFunc func(ProgressSnapshot)

// Config controls engine behavior. The zero value is not valid; use
// DefaultConfig or fill every field.
type Config struct {
	// Iterations is the PBKDF2 iteration count used on Encrypt
	Iterations int

	// SaltSize is the salt length in bytes generated on Encrypt
	SaltSize int

	// KeySize is the derived key length in bytes. If 0, the cipher
	// capability's KeySize is used.
	KeySize int

	// ChunkSize is the I/O chunk size for the stream pump
	ChunkSize int

	// ProgressInterval is the minimum wall-clock time between progress
	// events
	ProgressInterval time.Duration

	// Progress receives throttled progress events; nil disables reporting
	Progress ProgressFunc
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Iterations:       DefaultIterations,
		SaltSize:         DefaultSaltSize,
		ChunkSize:        DefaultChunkSize,
		ProgressInterval: DefaultProgressInterval,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return newArgumentError("config", nil, "config cannot be nil")
	}
	if c.Iterations < 1 {
		return newArgumentError("iterations", c.Iterations, "iteration count must be at least 1")
	}
	if c.SaltSize < MinSaltSize {
		return newArgumentError("salt_size", c.SaltSize, "salt must be at least 8 bytes")
	}
	if c.KeySize < 0 {
		return newArgumentError("key_size", c.KeySize, "key size cannot be negative")
	}
	if c.ChunkSize < 1 {
		return newArgumentError("chunk_size", c.ChunkSize, "chunk size must be at least 1 byte")
	}
	if c.ProgressInterval <= 0 {
		return newArgumentError("progress_interval", c.ProgressInterval, "progress interval must be positive")
	}
	return nil
}
