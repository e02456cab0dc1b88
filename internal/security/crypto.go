package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const KeySize = 32

var ErrKeySize = errors.New("security: key must be 32 bytes")

// DeriveKey menghasilkan kunci 32-byte dari password dan salt
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, 4096, KeySize, sha256.New)
}

// Sealer menyimpan AEAD yang sudah siap pakai, supaya tiap paket
// tidak perlu membuat cipher baru.
type Sealer struct {
	gcm cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

// Overhead is the number of bytes Seal adds to a packet.
func (s *Sealer) Overhead() int {
	return s.gcm.NonceSize() + s.gcm.Overhead()
}

// Seal mengenkripsi data menggunakan AES-GCM dengan Random Nonce
func (s *Sealer) Seal(data []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.gcm.Seal(nonce, nonce, data, nil), nil
}

// Open mendekripsi data menggunakan AES-GCM
func (s *Sealer) Open(data []byte) ([]byte, error) {
	nonceSize := s.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, io.ErrUnexpectedEOF
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return s.gcm.Open(nil, nonce, ciphertext, nil)
}
