// Package secretbox cifra secretos en reposo (secretos TOTP, client secrets
// de providers SSO, tokens de acceso) con AES-256-GCM y una clave maestra
// cargada desde el entorno.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	// EnvMasterKey es la variable de entorno con la clave maestra (base64, 32 bytes).
	EnvMasterKey = "CFAUTH_MASTER_KEY"

	keyLen    = 32 // AES-256
	nonceLen  = 12 // GCM estándar (96 bits)
	prefixGCM = "gcm1:"
)

var (
	mu      sync.RWMutex
	key     []byte
	keyOnce sync.Once
	loadErr error
)

// ensureKey carga la clave maestra una sola vez desde CFAUTH_MASTER_KEY.
func ensureKey() error {
	keyOnce.Do(func() {
		b64 := strings.TrimSpace(os.Getenv(EnvMasterKey))
		if b64 == "" {
			loadErr = fmt.Errorf("%s no seteada; genere una con: openssl rand -base64 32", EnvMasterKey)
			return
		}
		k, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			// algunas herramientas emiten base64 sin padding
			k, err = base64.RawStdEncoding.DecodeString(b64)
		}
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", EnvMasterKey, err)
			return
		}
		if len(k) != keyLen {
			loadErr = fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", EnvMasterKey, keyLen, len(k))
			return
		}
		mu.Lock()
		key = append([]byte(nil), k...)
		mu.Unlock()
	})
	return loadErr
}

// Ready indica si la clave maestra está cargada (para readyz / config print).
func Ready() bool {
	mu.RLock()
	defer mu.RUnlock()
	return len(key) == keyLen
}

func gcm() (cipher.AEAD, error) {
	mu.RLock()
	k := append([]byte(nil), key...)
	mu.RUnlock()
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt cifra plain y devuelve "gcm1:" + base64(nonce||ciphertext).
func Encrypt(plain string) (string, error) {
	if err := ensureKey(); err != nil {
		return "", err
	}
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := aead.Seal(nil, nonce, []byte(plain), nil)
	return prefixGCM + base64.StdEncoding.EncodeToString(append(nonce, ct...)), nil
}

// Decrypt recibe "gcm1:" + base64(nonce||ciphertext) y devuelve el texto plano.
func Decrypt(enc string) (string, error) {
	if err := ensureKey(); err != nil {
		return "", err
	}
	if !strings.HasPrefix(enc, prefixGCM) {
		return "", errors.New("formato inválido: falta prefijo gcm1")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(enc, prefixGCM))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) <= nonceLen {
		return "", errors.New("ciphertext demasiado corto")
	}
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nil, raw[:nonceLen], raw[nonceLen:], nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// --- Helpers para tests ---

// UnsafeResetForTests borra el estado interno. Usar sólo en tests.
func UnsafeResetForTests() {
	mu.Lock()
	key = nil
	mu.Unlock()
	keyOnce = sync.Once{}
	loadErr = nil
}

// UnsafeSetKeyForTests setea una clave cruda (32 bytes) en tests.
func UnsafeSetKeyForTests(k []byte) error {
	if len(k) != keyLen {
		return fmt.Errorf("clave inválida para test: se requieren %d bytes", keyLen)
	}
	UnsafeResetForTests()
	mu.Lock()
	key = append([]byte(nil), k...)
	mu.Unlock()
	// Consume el Once para que ensureKey no intente recargar desde el entorno.
	keyOnce.Do(func() {})
	return nil
}
