package cryptstream

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// testConfig keeps derivation cheap so the full matrix stays fast
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Iterations = 1000
	return cfg
}

func newTestSecret(t *testing.T, password string) *Secret {
	t.Helper()

	secret, err := NewSecret([]byte(password))
	if err != nil {
		t.Fatalf("NewSecret failed: %v", err)
	}
	t.Cleanup(secret.Destroy)
	return secret
}

func encryptBytes(t *testing.T, plaintext []byte, password string, cfg *Config) []byte {
	t.Helper()

	cipher, err := NewAESCBCCipher(32)
	if err != nil {
		t.Fatalf("NewAESCBCCipher failed: %v", err)
	}

	var dst bytes.Buffer
	engine, err := NewEngine(cipher, bytes.NewReader(plaintext), &dst, newTestSecret(t, password), cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	if err := engine.Encrypt(context.Background()); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	return dst.Bytes()
}

func decryptBytes(t *testing.T, container []byte, password string, cfg *Config) ([]byte, error) {
	t.Helper()

	cipher, err := NewAESCBCCipher(32)
	if err != nil {
		t.Fatalf("NewAESCBCCipher failed: %v", err)
	}

	var dst bytes.Buffer
	engine, err := NewEngine(cipher, bytes.NewReader(container), &dst, newTestSecret(t, password), cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	if err := engine.Decrypt(context.Background()); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func TestEngineRoundTrip(t *testing.T) {
	cfg := testConfig()

	sizes := []int{0, 1, cfg.ChunkSize - 1, cfg.ChunkSize, cfg.ChunkSize + 1}

	for _, size := range sizes {
		plaintext := make([]byte, size)
		for i := range plaintext {
			plaintext[i] = byte(i * 7)
		}

		container := encryptBytes(t, plaintext, "correct-password", cfg)

		recovered, err := decryptBytes(t, container, "correct-password", cfg)
		if err != nil {
			t.Fatalf("size %d: Decrypt failed: %v", size, err)
		}
		if !bytes.Equal(recovered, plaintext) {
			t.Errorf("size %d: round trip mismatch", size)
		}
	}
}

func TestEngineHelloWorldScenario(t *testing.T) {
	plaintext := []byte("HELLO WORLD")

	cfg := DefaultConfig() // full 120,000 iterations
	container := encryptBytes(t, plaintext, "correct-password", cfg)

	// The container must start with the header, fully written before
	// any ciphertext
	version, err := ReadVersion(bytes.NewReader(container))
	if err != nil {
		t.Fatalf("container header unreadable: %v", err)
	}
	if version != Version1 {
		t.Errorf("container version = %d, want 1", version)
	}

	recovered, err := decryptBytes(t, container, "correct-password", cfg)
	if err != nil {
		t.Fatalf("Decrypt with correct password failed: %v", err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Errorf("recovered %q, want %q", recovered, plaintext)
	}

	_, err = decryptBytes(t, container, "incorrect-password", cfg)
	if err == nil {
		t.Fatal("Decrypt with wrong password succeeded")
	}
	if !IsDecryptionError(err) {
		t.Errorf("wrong password: expected DecryptionError, got %T: %v", err, err)
	}
}

func TestEngineWrongPassword(t *testing.T) {
	cfg := testConfig()
	container := encryptBytes(t, []byte("sensitive data worth protecting"), "correct-password", cfg)

	_, err := decryptBytes(t, container, "wrong-password", cfg)
	if !IsDecryptionError(err) {
		t.Errorf("expected DecryptionError, got %T: %v", err, err)
	}
}

func TestEngineSaltAndIVFreshness(t *testing.T) {
	cfg := testConfig()
	plaintext := []byte("HELLO WORLD")

	a := encryptBytes(t, plaintext, "correct-password", cfg)
	b := encryptBytes(t, plaintext, "correct-password", cfg)

	readHeader := func(container []byte) *FileHeader {
		r := bytes.NewReader(container)
		if _, err := ReadVersion(r); err != nil {
			t.Fatalf("ReadVersion failed: %v", err)
		}
		h, err := ReadHeaderV1(r)
		if err != nil {
			t.Fatalf("ReadHeaderV1 failed: %v", err)
		}
		return h
	}

	ha, hb := readHeader(a), readHeader(b)

	if bytes.Equal(ha.Salt, hb.Salt) {
		t.Error("two Encrypt calls produced identical salts")
	}
	if bytes.Equal(ha.IV, hb.IV) {
		t.Error("two Encrypt calls produced identical IVs")
	}
	if bytes.Equal(a, b) {
		t.Error("two Encrypt calls produced identical containers")
	}
}

func TestEngineTamperedMagicFailsFast(t *testing.T) {
	cfg := testConfig()
	container := encryptBytes(t, []byte("payload"), "correct-password", cfg)

	for i := 0; i < len(MagicBytes); i++ {
		tampered := make([]byte, len(container))
		copy(tampered, container)
		tampered[i] ^= 0x01

		_, err := decryptBytes(t, tampered, "correct-password", cfg)
		if !IsFormatError(err) {
			t.Errorf("magic byte %d flipped: expected FormatError, got %T: %v", i, err, err)
		}
	}
}

func TestEngineRejectsUnsupportedVersion(t *testing.T) {
	cfg := testConfig()
	container := encryptBytes(t, []byte("payload"), "correct-password", cfg)

	for _, version := range []int32{0, -1, 99} {
		tampered := make([]byte, len(container))
		copy(tampered, container)
		// version is the int32 straight after the magic, big-endian
		tampered[len(MagicBytes)+0] = byte(uint32(version) >> 24)
		tampered[len(MagicBytes)+1] = byte(uint32(version) >> 16)
		tampered[len(MagicBytes)+2] = byte(uint32(version) >> 8)
		tampered[len(MagicBytes)+3] = byte(uint32(version))

		_, err := decryptBytes(t, tampered, "correct-password", cfg)
		if !IsFormatError(err) {
			t.Errorf("version %d: expected FormatError, got %T: %v", version, err, err)
		}
	}
}

func TestEngineProgressMonotonicAndComplete(t *testing.T) {
	cfg := testConfig()
	cfg.ChunkSize = 1024
	cfg.ProgressInterval = 1 // effectively unthrottled for the test

	var events []ProgressSnapshot
	cfg.Progress = func(s ProgressSnapshot) {
		events = append(events, s)
	}

	plaintext := make([]byte, 64*1024)
	encryptBytes(t, plaintext, "correct-password", cfg)

	if len(events) == 0 {
		t.Fatal("no progress events emitted")
	}

	var prev uint64
	for i, e := range events {
		if e.ProcessedBytes < prev {
			t.Fatalf("event %d: ProcessedBytes %d decreased from %d", i, e.ProcessedBytes, prev)
		}
		prev = e.ProcessedBytes
	}

	final := events[len(events)-1]
	if final.ProcessedBytes != uint64(len(plaintext)) {
		t.Errorf("final ProcessedBytes = %d, want %d", final.ProcessedBytes, len(plaintext))
	}
}

func TestEngineCancellation(t *testing.T) {
	cipher, err := NewAESCBCCipher(32)
	if err != nil {
		t.Fatalf("NewAESCBCCipher failed: %v", err)
	}

	var dst bytes.Buffer
	engine, err := NewEngine(cipher, bytes.NewReader([]byte("data")), &dst, newTestSecret(t, "pw"), testConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := engine.Encrypt(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewEngineValidation(t *testing.T) {
	cipher, err := NewAESCBCCipher(32)
	if err != nil {
		t.Fatalf("NewAESCBCCipher failed: %v", err)
	}
	defer cipher.Close()

	secret := newTestSecret(t, "pw")
	src := bytes.NewReader(nil)
	var dst bytes.Buffer

	tests := []struct {
		name   string
		cipher BlockCipher
		src    *bytes.Reader
		dst    *bytes.Buffer
		secret *Secret
		cfg    *Config
	}{
		{"nil cipher", nil, src, &dst, secret, nil},
		{"nil secret", cipher, src, &dst, nil, nil},
		{"bad iterations", cipher, src, &dst, secret, &Config{Iterations: 0, SaltSize: 16, ChunkSize: 1, ProgressInterval: 1}},
		{"bad salt size", cipher, src, &dst, secret, &Config{Iterations: 1, SaltSize: 4, ChunkSize: 1, ProgressInterval: 1}},
		{"bad chunk size", cipher, src, &dst, secret, &Config{Iterations: 1, SaltSize: 16, ChunkSize: 0, ProgressInterval: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cipher, tt.src, tt.dst, tt.secret, tt.cfg)
			if !IsArgumentError(err) {
				t.Errorf("expected ArgumentError, got %v", err)
			}
		})
	}

	// Nil streams are rejected before any I/O
	if _, err := NewEngine(cipher, nil, &dst, secret, nil); !IsArgumentError(err) {
		t.Errorf("nil source: expected ArgumentError, got %v", err)
	}
	if _, err := NewEngine(cipher, src, nil, secret, nil); !IsArgumentError(err) {
		t.Errorf("nil destination: expected ArgumentError, got %v", err)
	}
}

func TestEngineClose(t *testing.T) {
	cipher, err := NewAESCBCCipher(32)
	if err != nil {
		t.Fatalf("NewAESCBCCipher failed: %v", err)
	}

	var dst bytes.Buffer
	engine, err := NewEngine(cipher, bytes.NewReader(nil), &dst, newTestSecret(t, "pw"), testConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := engine.Encrypt(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Encrypt after Close: expected ErrEngineClosed, got %v", err)
	}
}

func TestEngineSequentialReuse(t *testing.T) {
	// One instance, two sequential operations: counters and timers are
	// per operation, so nothing may leak between them
	cfg := testConfig()
	secret := newTestSecret(t, "correct-password")

	cipher, err := NewAESCBCCipher(32)
	if err != nil {
		t.Fatalf("NewAESCBCCipher failed: %v", err)
	}

	plaintext := []byte("first operation payload")
	src := bytes.NewReader(plaintext)
	var container bytes.Buffer

	engine, err := NewEngine(cipher, src, &container, secret, cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := engine.Encrypt(context.Background()); err != nil {
		t.Fatalf("first Encrypt failed: %v", err)
	}
	engine.Close()

	recovered, err := decryptBytes(t, container.Bytes(), "correct-password", cfg)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Error("round trip mismatch after engine reuse")
	}
}

func TestEngineIDIsStable(t *testing.T) {
	cipher, err := NewAESCBCCipher(32)
	if err != nil {
		t.Fatalf("NewAESCBCCipher failed: %v", err)
	}

	var dst bytes.Buffer
	engine, err := NewEngine(cipher, bytes.NewReader(nil), &dst, newTestSecret(t, "pw"), testConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()

	if engine.ID() == "" {
		t.Error("engine ID is empty")
	}
	if engine.ID() != engine.ID() {
		t.Error("engine ID is not stable")
	}
}
