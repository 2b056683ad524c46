package sha256

import (
	"errors"
	"strings"
	"testing"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	streamed, err := h.HashReader(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("HashReader() error = %v", err)
	}
	if streamed != got {
		t.Fatalf("expected streamed digest to match, got %s vs %s", streamed, got)
	}
}

func TestHasherEmptyInput(t *testing.T) {
	t.Parallel()

	got, _ := New().Hash(nil)
	if got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected empty digest %s", got)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestHashReaderError(t *testing.T) {
	t.Parallel()

	if _, err := New().HashReader(failingReader{}); err == nil {
		t.Fatal("expected read error to surface")
	}
}
