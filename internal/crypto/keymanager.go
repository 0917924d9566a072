// Package crypto protects the signer credential at rest and authenticates
// requests to the remote signer.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfName       = "pbkdf2-sha256"
	kdfIterations = 480_000
	minIterations = 100_000
	saltSize      = 16
	keySize       = 32 // AES-256
)

var b64 = base64.RawStdEncoding

// sealedSecret is the on-disk envelope written by EncryptSecret. The KDF
// name and iteration count are bound into the GCM tag as additional data.
type sealedSecret struct {
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Data       string `json:"data"`
}

func (s sealedSecret) additionalData() []byte {
	return []byte(s.KDF + ":" + strconv.Itoa(s.Iterations))
}

// SecretConfig says where the signer secret comes from: Raw wins, otherwise
// EncryptedPath is decrypted with Password.
type SecretConfig struct {
	Raw           string
	EncryptedPath string
	Password      string
}

// EncryptSecret seals secret under a key derived from password and returns
// the JSON envelope to store on disk.
func EncryptSecret(secret []byte, password string) ([]byte, error) {
	if password == "" || len(secret) == 0 {
		return nil, errors.New("crypto: secret and password are required")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	env := sealedSecret{KDF: kdfName, Iterations: kdfIterations, Salt: b64.EncodeToString(salt)}

	aead, err := deriveAEAD(password, salt, env.Iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	env.Nonce = b64.EncodeToString(nonce)
	env.Data = b64.EncodeToString(aead.Seal(nil, nonce, secret, env.additionalData()))

	return json.MarshalIndent(env, "", "  ")
}

// DecryptSecret opens an envelope produced by EncryptSecret.
func DecryptSecret(blob []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password is required")
	}

	var env sealedSecret
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("crypto: parse sealed secret: %w", err)
	}
	if env.KDF != kdfName {
		return nil, fmt.Errorf("crypto: unsupported kdf %q", env.KDF)
	}
	if env.Iterations < minIterations {
		return nil, fmt.Errorf("crypto: %d kdf iterations is below %d", env.Iterations, minIterations)
	}

	var salt, nonce, data []byte
	for _, f := range []struct {
		name string
		in   string
		out  *[]byte
	}{{"salt", env.Salt, &salt}, {"nonce", env.Nonce, &nonce}, {"data", env.Data, &data}} {
		b, err := b64.DecodeString(f.in)
		if err != nil {
			return nil, fmt.Errorf("crypto: decode %s: %w", f.name, err)
		}
		*f.out = b
	}

	aead, err := deriveAEAD(password, salt, env.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce is %d bytes", len(nonce))
	}
	plain, err := aead.Open(nil, nonce, data, env.additionalData())
	if err != nil {
		return nil, errors.New("crypto: cannot open sealed secret, wrong password or corrupted file")
	}
	return plain, nil
}

func deriveAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// LoadSecret resolves the signer secret from cfg.
func LoadSecret(cfg SecretConfig) ([]byte, error) {
	switch {
	case cfg.Raw != "":
		return []byte(cfg.Raw), nil
	case cfg.EncryptedPath != "":
		blob, err := os.ReadFile(cfg.EncryptedPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read %s: %w", cfg.EncryptedPath, err)
		}
		return DecryptSecret(blob, cfg.Password)
	default:
		return nil, errors.New("crypto: no signer secret configured")
	}
}
