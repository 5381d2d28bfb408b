package cryptstream

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/absfs/absfs"
	"golang.org/x/sync/errgroup"
)

// File-level convenience operations over an absfs.FileSystem. The engine
// itself only ever borrows streams; the helpers here own the files they
// open and close them on every path.

// DefaultEncryptSuffix is appended to encrypted output paths by the batch
// helpers
const DefaultEncryptSuffix = ".cse"

// NewCipherFunc constructs a fresh cipher capability for one operation.
// Each engine owns its capability exclusively, so batch helpers need a new
// one per file.
type NewCipherFunc func() (BlockCipher, error)

// defaultCipher builds the stock AES-256-CBC capability
func defaultCipher() (BlockCipher, error) {
	return NewAESCBCCipher(32)
}

// EncryptFile encrypts the file at path into outPath on the given
// filesystem. A nil newCipher uses AES-256-CBC; a nil cfg uses defaults.
// On failure the partial output file is removed.
func EncryptFile(ctx context.Context, fs absfs.FileSystem, path, outPath string, secret *Secret, newCipher NewCipherFunc, cfg *Config) (err error) {
	return processFile(ctx, fs, path, outPath, secret, newCipher, cfg, func(e *Engine) error {
		return e.Encrypt(ctx)
	})
}

// DecryptFile decrypts the container at path into outPath on the given
// filesystem. On failure the partial output file is removed; on a
// DecryptionError callers will typically re-prompt for the password.
func DecryptFile(ctx context.Context, fs absfs.FileSystem, path, outPath string, secret *Secret, newCipher NewCipherFunc, cfg *Config) (err error) {
	return processFile(ctx, fs, path, outPath, secret, newCipher, cfg, func(e *Engine) error {
		return e.Decrypt(ctx)
	})
}

func processFile(ctx context.Context, fs absfs.FileSystem, path, outPath string, secret *Secret, newCipher NewCipherFunc, cfg *Config, run func(*Engine) error) (err error) {
	if fs == nil {
		return newArgumentError("fs", nil, "filesystem cannot be nil")
	}
	if path == "" || outPath == "" {
		return newArgumentError("path", path, "input and output paths cannot be empty")
	}
	if newCipher == nil {
		newCipher = defaultCipher
	}

	cipher, err := newCipher()
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}

	src, err := fs.Open(path)
	if err != nil {
		cipher.Close()
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	dst, err := fs.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		cipher.Close()
		return fmt.Errorf("creating %s: %w", outPath, err)
	}

	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", outPath, cerr)
		}
		// Partial output is not useful to anyone; drop it on failure
		if err != nil {
			fs.Remove(outPath)
		}
	}()

	engine, err := NewEngine(cipher, src, dst, secret, cfg)
	if err != nil {
		cipher.Close()
		return err
	}
	defer engine.Close()

	return run(engine)
}

// Result reports the outcome of one file in a batch operation
type Result struct {
	Path   string // Input path
	Output string // Output path, empty on failure
	Err    error  // Per-file error, nil on success
}

// EncryptFiles encrypts paths concurrently with at most parallel workers,
// appending suffix (DefaultEncryptSuffix if empty) to each output path.
// Every file gets its own cipher capability and engine. The returned slice
// has one Result per input path, in input order; the error is the first
// per-file failure, if any.
func EncryptFiles(ctx context.Context, fs absfs.FileSystem, paths []string, secret *Secret, newCipher NewCipherFunc, cfg *Config, suffix string, parallel int) ([]Result, error) {
	if suffix == "" {
		suffix = DefaultEncryptSuffix
	}
	return processFiles(ctx, paths, parallel, func(path string) Result {
		outPath := path + suffix
		err := EncryptFile(ctx, fs, path, outPath, secret, newCipher, cfg)
		return result(path, outPath, err)
	})
}

// DecryptFiles decrypts paths concurrently with at most parallel workers,
// stripping suffix (DefaultEncryptSuffix if empty) from each output path.
func DecryptFiles(ctx context.Context, fs absfs.FileSystem, paths []string, secret *Secret, newCipher NewCipherFunc, cfg *Config, suffix string, parallel int) ([]Result, error) {
	if suffix == "" {
		suffix = DefaultEncryptSuffix
	}
	return processFiles(ctx, paths, parallel, func(path string) Result {
		outPath := strings.TrimSuffix(path, suffix)
		if outPath == path {
			return result(path, "", fmt.Errorf("%s does not have suffix %q", path, suffix))
		}
		err := DecryptFile(ctx, fs, path, outPath, secret, newCipher, cfg)
		return result(path, outPath, err)
	})
}

func processFiles(ctx context.Context, paths []string, parallel int, process func(string) Result) ([]Result, error) {
	if len(paths) == 0 {
		return nil, newArgumentError("paths", paths, "at least one path is required")
	}
	if parallel < 1 {
		parallel = 1
	}

	results := make([]Result, len(paths))

	var group errgroup.Group
	group.SetLimit(parallel)

	for i, path := range paths {
		i, path := i, path
		group.Go(func() error {
			results[i] = process(path)
			return results[i].Err
		})
	}

	return results, group.Wait()
}

func result(path, outPath string, err error) Result {
	if err != nil {
		return Result{Path: path, Err: err}
	}
	return Result{Path: path, Output: outPath}
}
