package security

import (
	"bytes"
	"errors"
	"testing"

	"hdxplay/pkg/spec"
)

func TestDeriveKeyIsDeterministic(t *testing.T) {
	a := DeriveKey("hardix2025", []byte(spec.Salt))
	b := DeriveKey("hardix2025", []byte(spec.Salt))
	c := DeriveKey("other", []byte(spec.Salt))

	if len(a) != KeySize {
		t.Fatalf("key length = %d", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Fatal("same password gave different keys")
	}
	if bytes.Equal(a, c) {
		t.Fatal("different passwords gave the same key")
	}
}

func TestSealOpen(t *testing.T) {
	key := DeriveKey("pw", []byte(spec.Salt))
	s, err := NewSealer(key)
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("opus packet payload")
	sealed, err := s.Seal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(sealed) != len(msg)+s.Overhead() {
		t.Fatalf("sealed len = %d, want %d", len(sealed), len(msg)+s.Overhead())
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("Open = %q", got)
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := s.Open(sealed); err == nil {
		t.Fatal("tampered packet opened without error")
	}
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	for _, key := range [][]byte{nil, []byte("short"), make([]byte, KeySize+1)} {
		if _, err := NewSealer(key); !errors.Is(err, ErrKeySize) {
			t.Fatalf("NewSealer(%d bytes) err = %v", len(key), err)
		}
	}

	s, err := NewSealer(DeriveKey("pw", []byte(spec.Salt)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open([]byte{1, 2}); err == nil {
		t.Fatal("short input should fail")
	}
}
