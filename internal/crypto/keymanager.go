// Package crypto resolves the trading wallet's private key and signs the
// transactions and outbound payloads the bot emits.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileVersion = 2
	// defaultIterations is the OWASP minimum for PBKDF2-HMAC-SHA256.
	defaultIterations = 600_000
	minIterations     = 100_000
	saltLen           = 16
)

var (
	// ErrNoKeySource is returned by LoadKey when neither a raw key nor a key
	// file is configured.
	ErrNoKeySource = errors.New("crypto: no private key source configured")
	// ErrWrongPassword is returned when a key file does not decrypt.
	ErrWrongPassword = errors.New("crypto: wrong password or corrupted key file")
)

// keyFile is the on-disk keystore. The wallet address is stored in clear so
// operators can tell files apart, and is bound to the ciphertext as
// additional data so it cannot be swapped.
type keyFile struct {
	Version    int            `json:"version"`
	Address    common.Address `json:"address"`
	KDF        kdfParams      `json:"kdf"`
	Nonce      string         `json:"nonce"`
	Ciphertext string         `json:"ciphertext"`
}

type kdfParams struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
}

// KeyConfig carries the information LoadKey needs to resolve a private key.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded key, with or without 0x prefix. It wins
	// over EncryptedKeyPath when both are set.
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// EncryptKey seals a hex private key with a password-derived AES-256-GCM key
// and returns the keystore JSON.
func EncryptKey(privateKeyHex string, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	raw, addr, err := parseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	kdf := kdfParams{Name: "pbkdf2-sha256", Iterations: defaultIterations, Salt: hex.EncodeToString(salt)}
	aead, err := deriveAEAD(password, salt, kdf.Iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Address:    addr,
		KDF:        kdf,
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(aead.Seal(nil, nonce, raw, addr.Bytes())),
	}, "", "  ")
}

// DecryptKey opens a keystore produced by EncryptKey and returns the private
// key as hex without 0x prefix.
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}
	if kf.KDF.Iterations < minIterations {
		return "", fmt.Errorf("crypto: key file kdf iterations %d below %d", kf.KDF.Iterations, minIterations)
	}

	salt, err1 := hex.DecodeString(kf.KDF.Salt)
	nonce, err2 := hex.DecodeString(kf.Nonce)
	sealed, err3 := hex.DecodeString(kf.Ciphertext)
	if err := errors.Join(err1, err2, err3); err != nil {
		return "", fmt.Errorf("crypto: decode key file: %w", err)
	}

	aead, err := deriveAEAD(password, salt, kf.KDF.Iterations)
	if err != nil {
		return "", err
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("crypto: nonce length %d, want %d", len(nonce), aead.NonceSize())
	}
	raw, err := aead.Open(nil, nonce, sealed, kf.Address.Bytes())
	if err != nil {
		return "", ErrWrongPassword
	}

	key := hex.EncodeToString(raw)
	if _, addr, err := parseKey(key); err != nil || addr != kf.Address {
		return "", fmt.Errorf("crypto: key file does not match address %s", kf.Address.Hex())
	}
	return key, nil
}

// WriteEncryptedKey encrypts privateKeyHex and creates path with owner-only
// permissions. An existing file is never overwritten.
func WriteEncryptedKey(path, privateKeyHex, password string) error {
	blob, err := EncryptKey(privateKeyHex, password)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("crypto: create key file: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("crypto: write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("crypto: write key file: %w", err)
	}
	return nil
}

// LoadKey resolves a private key from cfg: the raw key if set, otherwise the
// decrypted contents of EncryptedKeyPath.
func LoadKey(cfg KeyConfig) (string, error) {
	switch {
	case cfg.RawPrivateKey != "":
		raw, _, err := parseKey(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(bytes.TrimSpace(data), cfg.KeyPassword)
	default:
		return "", ErrNoKeySource
	}
}

// parseKey validates a hex secp256k1 key and derives its address.
func parseKey(s string) ([]byte, common.Address, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	pk, err := ethcrypto.HexToECDSA(s)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return ethcrypto.FromECDSA(pk), ethcrypto.PubkeyToAddress(pk.PublicKey), nil
}

func deriveAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
