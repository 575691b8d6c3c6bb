package pkg

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SealedBox encrypts and decrypts the offline batches field devices queue
// while disconnected. AES-256-GCM; the nonce travels next to the ciphertext
// as the queue item's IV column.
type SealedBox struct {
	aead cipher.AEAD
}

func NewSealedBox(hexKey string) (*SealedBox, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("sync key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("sync key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SealedBox{aead: aead}, nil
}

func (b *SealedBox) Seal(plaintext []byte) (ciphertext, iv []byte, err error) {
	iv = make([]byte, b.aead.NonceSize())
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, err
	}
	return b.aead.Seal(nil, iv, plaintext, nil), iv, nil
}

func (b *SealedBox) Open(ciphertext, iv []byte) ([]byte, error) {
	if len(iv) != b.aead.NonceSize() {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", b.aead.NonceSize(), len(iv))
	}
	plaintext, err := b.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot decrypt batch: %w", err)
	}
	return plaintext, nil
}
