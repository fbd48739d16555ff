package crypto

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestDecryptKey_AddressBoundToCiphertext(t *testing.T) {
	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)

	var kf map[string]any
	require.NoError(t, json.Unmarshal(blob, &kf))
	signer, err := NewTxSigner(testKey, 1)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(signer.Address().Hex()), kf["address"])

	kf["address"] = "0x000000000000000000000000000000000000dEaD"
	tampered, err := json.Marshal(kf)
	require.NoError(t, err)
	_, err = DecryptKey(tampered, "pw")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestWriteEncryptedKey_NeverOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, WriteEncryptedKey(path, testKey, "pw"))
	assert.Error(t, WriteEncryptedKey(path, testKey, "other"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptKey_RejectsBadInput(t *testing.T) {
	_, err := EncryptKey(testKey, "")
	assert.Error(t, err)
	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)
	_, err = EncryptKey(strings.Repeat("0", 64), "pw")
	assert.Error(t, err, "zero is not a valid secp256k1 key")
}

func TestLoadKey(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, WriteEncryptedKey(path, testKey, "pw"))
	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = LoadKey(KeyConfig{})
	assert.ErrorIs(t, err, ErrNoKeySource)
}

func TestTxSigner_SignsForChain(t *testing.T) {
	s, err := NewTxSigner(testKey, 1)
	require.NoError(t, err)

	to := common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	tx := types.NewTransaction(0, to, big.NewInt(1), 21_000, big.NewInt(1_000_000_000), nil)
	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	from, err := s.Sender(signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
	assert.Equal(t, int64(1), signed.ChainId().Int64())
}

func TestPayloadSigner(t *testing.T) {
	p := PayloadSigner{Secret: "shh"}
	body := []byte(`{"type":"fatal"}`)
	h := p.HeadersAt(body, 1_700_000_000)

	assert.Equal(t, "1700000000", h[HeaderTimestamp])
	assert.True(t, p.Verify("1700000000", body, h[HeaderSignature]))
	assert.False(t, p.Verify("1700000001", body, h[HeaderSignature]))
}
