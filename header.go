package cryptstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// Version1 is the only defined container format version
	Version1 = int32(1)

	// maxHeaderField caps length-prefixed header fields so a corrupt
	// header cannot trigger an oversized allocation
	maxHeaderField = 1 << 16
)

// MagicBytes identifies cryptstream containers (ASCII: "CSTR")
var MagicBytes = []byte{0x43, 0x53, 0x54, 0x52}

// FileHeader represents the header of an encrypted container. All integer
// fields are serialized as big-endian int32, salt and iv length-prefixed.
type FileHeader struct {
	Version    int32  // Container format version
	Iterations int32  // PBKDF2 iteration count
	Salt       []byte // Salt for key derivation
	IV         []byte // Initialization vector for the cipher transform
}

// NewFileHeader creates a version 1 header with the given parameters
func NewFileHeader(iterations int32, salt, iv []byte) *FileHeader {
	return &FileHeader{
		Version:    Version1,
		Iterations: iterations,
		Salt:       salt,
		IV:         iv,
	}
}

// Size returns the serialized size of the header in bytes
func (h *FileHeader) Size() int {
	return len(MagicBytes) + 4 + 4 + 4 + len(h.Salt) + 4 + len(h.IV)
}

// WriteTo serializes the header in fixed field order: magic, version,
// iterations, salt length, salt, iv length, iv. The header is written as a
// single contiguous block so no ciphertext can precede it.
func (h *FileHeader) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)

	buf.Write(MagicBytes)

	if err := binary.Write(buf, binary.BigEndian, h.Version); err != nil {
		return 0, fmt.Errorf("writing version: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, h.Iterations); err != nil {
		return 0, fmt.Errorf("writing iterations: %w", err)
	}

	if err := binary.Write(buf, binary.BigEndian, int32(len(h.Salt))); err != nil {
		return 0, fmt.Errorf("writing salt length: %w", err)
	}
	buf.Write(h.Salt)

	if err := binary.Write(buf, binary.BigEndian, int32(len(h.IV))); err != nil {
		return 0, fmt.Errorf("writing iv length: %w", err)
	}
	buf.Write(h.IV)

	n, err := w.Write(buf.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("writing header: %w", err)
	}
	return int64(n), nil
}

// ReadVersion reads and validates the common header prefix: the magic
// sequence, byte for byte, then the version field. It fails fast so no key
// derivation is wasted on a stream that is not a cryptstream container.
func ReadVersion(r io.Reader) (int32, error) {
	magic := make([]byte, len(MagicBytes))
	if _, err := io.ReadFull(r, magic); err != nil {
		return 0, newFormatError("magic", fmt.Errorf("reading magic: %w", err))
	}
	if !bytes.Equal(magic, MagicBytes) {
		return 0, newFormatError("magic", ErrBadMagic)
	}

	var version int32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return 0, newFormatError("version", fmt.Errorf("reading version: %w", err))
	}
	if version <= 0 {
		return 0, newFormatError("version", fmt.Errorf("version %d: %w", version, ErrUnsupportedVersion))
	}

	return version, nil
}

// ReadHeaderV1 reads the version 1 header body: iterations, then
// length-prefixed salt and iv. The caller must have consumed the common
// prefix with ReadVersion first.
func ReadHeaderV1(r io.Reader) (*FileHeader, error) {
	h := &FileHeader{Version: Version1}

	if err := binary.Read(r, binary.BigEndian, &h.Iterations); err != nil {
		return nil, newFormatError("iterations", fmt.Errorf("reading iterations: %w", err))
	}
	if h.Iterations <= 0 {
		return nil, newFormatError("iterations", fmt.Errorf("iteration count %d must be positive", h.Iterations))
	}

	salt, err := readLengthPrefixed(r, "salt")
	if err != nil {
		return nil, err
	}
	h.Salt = salt

	iv, err := readLengthPrefixed(r, "iv")
	if err != nil {
		return nil, err
	}
	h.IV = iv

	return h, nil
}

// readLengthPrefixed reads a big-endian int32 length followed by that many
// bytes. A non-positive or oversized length is a format error.
func readLengthPrefixed(r io.Reader, field string) ([]byte, error) {
	var length int32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, newFormatError(field, fmt.Errorf("reading %s length: %w", field, err))
	}
	if length <= 0 {
		return nil, newFormatError(field, fmt.Errorf("%s length %d must be positive", field, length))
	}
	if length > maxHeaderField {
		return nil, newFormatError(field, fmt.Errorf("%s length %d exceeds maximum %d", field, length, maxHeaderField))
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, newFormatError(field, fmt.Errorf("reading %s: %w", field, err))
	}
	return data, nil
}
