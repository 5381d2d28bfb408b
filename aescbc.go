package cryptstream

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
)

// AESCBCCipher is a BlockCipher capability backed by AES in CBC mode with
// PKCS#7 padding. The final padding block doubles as the integrity check on
// decrypt: a wrong key scrambles it and the padding verification fails.
type AESCBCCipher struct {
	keySize int
	block   cipher.Block
	iv      []byte
	closed  bool
}

// NewAESCBCCipher creates an AES-CBC capability for the given key size
// (16, 24, or 32 bytes). The key and IV are installed later by the engine.
func NewAESCBCCipher(keySize int) (*AESCBCCipher, error) {
	switch keySize {
	case 16, 24, 32:
	default:
		return nil, newArgumentError("key_size", keySize, "AES key size must be 16, 24, or 32 bytes")
	}
	return &AESCBCCipher{keySize: keySize}, nil
}

// KeySize returns the configured AES key size in bytes
func (c *AESCBCCipher) KeySize() int {
	return c.keySize
}

// BlockSize returns the AES block size (16 bytes)
func (c *AESCBCCipher) BlockSize() int {
	return aes.BlockSize
}

// SetKey installs the symmetric key and builds the AES key schedule
func (c *AESCBCCipher) SetKey(key []byte) error {
	if c.closed {
		return ErrEngineClosed
	}
	if len(key) != c.keySize {
		return newArgumentError("key", len(key), fmt.Sprintf("key must be %d bytes", c.keySize))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("creating AES cipher: %w", err)
	}
	c.block = block
	return nil
}

// SetIV installs the initialization vector for the next transform
func (c *AESCBCCipher) SetIV(iv []byte) error {
	if c.closed {
		return ErrEngineClosed
	}
	if len(iv) != aes.BlockSize {
		return newArgumentError("iv", len(iv), fmt.Sprintf("iv must be %d bytes", aes.BlockSize))
	}

	c.iv = make([]byte, aes.BlockSize)
	copy(c.iv, iv)
	return nil
}

// Encrypter returns a forward CBC transform writing ciphertext to dst.
// Close flushes the final padded block; with PKCS#7 a padding block is
// always emitted, so an empty plaintext still produces one block.
func (c *AESCBCCipher) Encrypter(dst io.Writer) (io.WriteCloser, error) {
	if err := c.transformReady(); err != nil {
		return nil, err
	}
	return &cbcEncrypter{
		mode: cipher.NewCBCEncrypter(c.block, c.iv),
		dst:  dst,
		buf:  make([]byte, 0, 2*aes.BlockSize),
	}, nil
}

// Decrypter returns a reverse CBC transform writing plaintext to dst. The
// last ciphertext block is held back until Close, where the padding is
// verified; a failed check reports a DecryptionError.
func (c *AESCBCCipher) Decrypter(dst io.Writer) (io.WriteCloser, error) {
	if err := c.transformReady(); err != nil {
		return nil, err
	}
	return &cbcDecrypter{
		mode: cipher.NewCBCDecrypter(c.block, c.iv),
		dst:  dst,
	}, nil
}

// Close releases the capability and wipes the IV. The AES key schedule is
// dropped for the garbage collector; no further transforms can be opened.
func (c *AESCBCCipher) Close() error {
	c.block = nil
	Zero(c.iv)
	c.iv = nil
	c.closed = true
	return nil
}

func (c *AESCBCCipher) transformReady() error {
	if c.closed {
		return ErrEngineClosed
	}
	if c.block == nil {
		return newArgumentError("key", nil, "key has not been set")
	}
	if c.iv == nil {
		return newArgumentError("iv", nil, "iv has not been set")
	}
	return nil
}

// cbcEncrypter streams plaintext through CBC encryption block by block
type cbcEncrypter struct {
	mode cipher.BlockMode
	dst  io.Writer
	buf  []byte
}

// Write encrypts every complete block immediately and buffers at most one
// partial block, keeping memory usage O(chunk) rather than O(stream)
func (e *cbcEncrypter) Write(p []byte) (int, error) {
	e.buf = append(e.buf, p...)

	n := len(e.buf) / aes.BlockSize * aes.BlockSize
	if n > 0 {
		out := make([]byte, n)
		e.mode.CryptBlocks(out, e.buf[:n])
		if _, err := e.dst.Write(out); err != nil {
			return 0, fmt.Errorf("writing encrypted block: %w", err)
		}
		e.buf = append(e.buf[:0], e.buf[n:]...)
	}

	return len(p), nil
}

// Close pads the remaining partial block and flushes it
func (e *cbcEncrypter) Close() error {
	padded := pkcs7Pad(e.buf, aes.BlockSize)
	out := make([]byte, len(padded))
	e.mode.CryptBlocks(out, padded)
	Zero(e.buf)
	e.buf = nil

	if _, err := e.dst.Write(out); err != nil {
		return fmt.Errorf("writing final encrypted block: %w", err)
	}
	return nil
}

// cbcDecrypter streams ciphertext through CBC decryption, holding back the
// final block until Close so the padding can be verified
type cbcDecrypter struct {
	mode cipher.BlockMode
	dst  io.Writer
	buf  []byte
}

// Write decrypts every complete block except the last one seen so far,
// which may turn out to be the padding block
func (d *cbcDecrypter) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)

	// Hold one block in reserve for Close
	avail := len(d.buf) - aes.BlockSize
	if avail <= 0 {
		return len(p), nil
	}

	n := avail / aes.BlockSize * aes.BlockSize
	if n > 0 {
		out := make([]byte, n)
		d.mode.CryptBlocks(out, d.buf[:n])
		if _, err := d.dst.Write(out); err != nil {
			return 0, fmt.Errorf("writing decrypted block: %w", err)
		}
		d.buf = append(d.buf[:0], d.buf[n:]...)
	}

	return len(p), nil
}

// Close decrypts the reserved final block and verifies its padding. Any
// misalignment or padding failure is reported as a DecryptionError, the
// caller's signal that the password was wrong or the data corrupted.
func (d *cbcDecrypter) Close() error {
	if len(d.buf) != aes.BlockSize {
		return newDecryptionError(fmt.Errorf("truncated or misaligned ciphertext"))
	}

	out := make([]byte, aes.BlockSize)
	d.mode.CryptBlocks(out, d.buf)
	d.buf = nil

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return newDecryptionError(err)
	}

	if _, err := d.dst.Write(unpadded); err != nil {
		return fmt.Errorf("writing final decrypted block: %w", err)
	}
	return nil
}

// pkcs7Pad adds PKCS#7 padding to make data a whole number of blocks
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(data, padText...)
}

// pkcs7Unpad removes and verifies PKCS#7 padding
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	length := len(data)
	if length == 0 {
		return nil, ErrInvalidPadding
	}

	padding := int(data[length-1])
	if padding < 1 || padding > blockSize || padding > length {
		return nil, ErrInvalidPadding
	}

	for i := length - padding; i < length; i++ {
		if data[i] != byte(padding) {
			return nil, ErrInvalidPadding
		}
	}

	return data[:length-padding], nil
}
