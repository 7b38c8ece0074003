package auth

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

// newTestCodeHasher uses bcrypt cost 4, the minimum, so tests stay fast.
func newTestCodeHasher() *CodeHasher {
	return NewCodeHasherForTest(4)
}

// =========================================================================
// Generate TESTS
// =========================================================================

func TestGenerate_SixDigits(t *testing.T) {
	h := newTestCodeHasher()
	sixDigits := regexp.MustCompile(`^[0-9]{6}$`)

	for i := 0; i < 50; i++ {
		code, err := h.Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if !sixDigits.MatchString(code) {
			t.Fatalf("Generate() = %q, want six digits", code)
		}
	}
}

// =========================================================================
// Hash / Verify TESTS
// =========================================================================

func TestHash_OutputLooksBcrypt(t *testing.T) {
	h := newTestCodeHasher()

	hash, err := h.Hash("123456")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestHash_SameCodeProducesDifferentHashes(t *testing.T) {
	h := newTestCodeHasher()

	hash1, _ := h.Hash("123456")
	hash2, _ := h.Hash("123456")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same code (salt must be random)")
	}
}

func TestVerify(t *testing.T) {
	h := newTestCodeHasher()
	hash, err := h.Hash("042917")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name         string
		hash         string
		code         string
		wantErr      bool
		wantMismatch bool
	}{
		{name: "correct code", hash: hash, code: "042917"},
		{name: "wrong code", hash: hash, code: "042918", wantErr: true, wantMismatch: true},
		{name: "leading zero dropped", hash: hash, code: "42917", wantErr: true, wantMismatch: true},
		{name: "garbage hash", hash: "not-a-hash", code: "042917", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Verify(tt.hash, tt.code)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantMismatch && !errors.Is(err, ErrCodeMismatch) {
				t.Errorf("Verify() error = %v, want ErrCodeMismatch", err)
			}
		})
	}
}
