// Package cryptstream converts arbitrary byte streams into self-describing
// encrypted containers and back, using a password-derived symmetric key.
//
// # Overview
//
// cryptstream is built for end-user file-encryption tools that need a
// portable on-disk format plus progress feedback for long-running
// transforms. The engine borrows an open source stream and destination
// stream, derives a key from a protected password via PBKDF2-SHA256, and
// pumps fixed-size chunks through an injected cipher capability while
// emitting throttled progress events.
//
// # Container Format
//
// Containers start with a versioned binary header (big-endian integers):
//
//	magic      : 4 bytes "CSTR"
//	version    : int32, currently 1
//	iterations : int32
//	saltLen    : int32, followed by saltLen salt bytes
//	ivLen      : int32, followed by ivLen iv bytes
//	ciphertext : remaining bytes to end of stream
//
// The header is fully written before any ciphertext, and fully parsed
// before key derivation is attempted, so malformed input fails before the
// CPU-heavy stretch.
//
// # Basic Usage
//
//	secret, _ := cryptstream.NewSecret([]byte("correct-password"))
//	defer secret.Destroy()
//
//	cipher, _ := cryptstream.NewAESCBCCipher(32)
//
//	cfg := cryptstream.DefaultConfig()
//	cfg.Progress = func(s cryptstream.ProgressSnapshot) {
//	    fmt.Printf("%d bytes, %.0f B/s\n", s.ProcessedBytes, s.BytesPerSecond)
//	}
//
//	engine, err := cryptstream.NewEngine(cipher, src, dst, secret, cfg)
//	if err != nil {
//	    panic(err)
//	}
//	defer engine.Close()
//
//	if err := engine.Encrypt(context.Background()); err != nil {
//	    panic(err)
//	}
//
// Decryption is symmetric: construct an engine over the container stream
// and call Decrypt. A wrong password or corrupted ciphertext surfaces as a
// DecryptionError when the final block's padding check fails; a stream
// that is not a cryptstream container surfaces as a FormatError.
//
// # Secret Handling
//
// Passwords are held as a Secret: an XOR-masked in-memory representation
// decoded only for the duration of key derivation, into a buffer that is
// page-pinned where the platform allows and zero-filled on every exit
// path, including error and cancellation. Key derivation runs on a worker
// goroutine so callers driving an event loop stay responsive.
//
// # Security Considerations
//
// The version 1 format carries no authentication tag; the PKCS#7 padding
// check on the final block is the only integrity signal, and it detects a
// wrong key with overwhelming but not cryptographic certainty. Tools that
// need tamper evidence should wrap the container or wait for a format
// version that adds an authenticated mode.
package cryptstream
