package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// TxSigner signs transactions for a single EOA on one chain.
type TxSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	signer     types.Signer
}

// NewTxSigner creates a TxSigner from a hex-encoded secp256k1 private key and
// the target chain ID.
func NewTxSigner(privateKeyHex string, chainID int64) (*TxSigner, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &TxSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		signer:     types.LatestSignerForChainID(big.NewInt(chainID)),
	}, nil
}

// Address returns the wallet address derived from the private key.
func (s *TxSigner) Address() common.Address {
	return s.address
}

// SignTx returns a signed copy of tx.
func (s *TxSigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign tx: %w", err)
	}
	return signed, nil
}

// Sender recovers the sender of a signed transaction under this signer's chain
// rules.
func (s *TxSigner) Sender(tx *types.Transaction) (common.Address, error) {
	return types.Sender(s.signer, tx)
}
