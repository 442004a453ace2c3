package sessions

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealedStoreInfo = "stratgate session slots v1"

var _ Store = (*SealedStore)(nil)

// SealedStore encrypts and authenticates every slot value before handing it to
// the wrapped store. The slot name is bound as additional data so values cannot
// be swapped between slots. A value that fails to open reads as absent.
type SealedStore struct {
	inner Store
	aead  cipher.AEAD
}

func NewSealedStore(inner Store, secret string) (*SealedStore, error) {
	sealer, err := NewSealer(secret)
	if err != nil {
		return nil, err
	}
	return sealer.Seal(inner), nil
}

// Sealer holds the key derived from a secret so that per-request stores can
// share it.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("[NewSealer] secret is required")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealedStoreInfo)), key); err != nil {
		return nil, fmt.Errorf("[NewSealer] derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("[NewSealer] cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal wraps inner with the sealer's key.
func (s *Sealer) Seal(inner Store) *SealedStore {
	return &SealedStore{inner: inner, aead: s.aead}
}

func (s *SealedStore) Get(name string) (string, bool) {
	raw, ok := s.inner.Get(name)
	if !ok {
		return "", false
	}
	sealed, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(sealed) < s.aead.NonceSize() {
		return "", false
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return "", false
	}
	return string(plain), true
}

func (s *SealedStore) Set(name, value string, maxAge time.Duration) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		// Without a nonce nothing can be sealed safely; drop the slot so Read sees no session.
		s.inner.Delete(name)
		return
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(name))
	s.inner.Set(name, base64.RawURLEncoding.EncodeToString(sealed), maxAge)
}

func (s *SealedStore) Delete(name string) {
	s.inner.Delete(name)
}
