// Package backupcode genera y valida códigos de recuperación de un solo uso
// para cuando el usuario no tiene acceso a su app TOTP.
package backupcode

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// DefaultCount es la cantidad de códigos por lote.
const DefaultCount = 10

// Alfabeto sin caracteres ambiguos (0/O, 1/I/L).
const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

type params struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
	keyLen  uint32
}

// Los códigos ya tienen ~51 bits de entropía; parámetros más livianos que
// los de passwords alcanzan.
var hashParams = params{memory: 19 * 1024, time: 2, threads: 1, keyLen: 32}

// Generate produce n códigos con formato XXXXX-XXXXX.
func Generate(n int) ([]string, error) {
	if n <= 0 {
		n = DefaultCount
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		c, err := randomCode()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func randomCode() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, v := range b {
		if i == 5 {
			sb.WriteByte('-')
		}
		sb.WriteByte(alphabet[int(v)%len(alphabet)])
	}
	return sb.String(), nil
}

// Normalize canonicaliza la entrada del usuario (mayúsculas, sin espacios ni guiones).
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return code
}

// Hash devuelve un PHC string argon2id del código normalizado.
func Hash(code string) (string, error) {
	code = Normalize(code)
	if code == "" {
		return "", fmt.Errorf("empty code")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := hashParams
	dk := argon2.IDKey([]byte(code), salt, p.time, p.memory, p.threads, p.keyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// Verify compara un código contra un PHC string en tiempo constante.
func Verify(code, phc string) bool {
	code = Normalize(code)
	parts := strings.Split(phc, "$")
	// ["", "argon2id", "v=19", "m=..,t=..,p=..", salt, dk]
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return false
	}
	var m, t, p int
	if n, _ := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); n != 3 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	dkStored, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(code), salt, uint32(t), uint32(m), uint8(p), uint32(len(dkStored)))
	return subtle.ConstantTimeCompare(key, dkStored) == 1
}
