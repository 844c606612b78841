package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKey is returned for private keys that are not 32 hex-encoded bytes.
var ErrInvalidKey = errors.New("invalid private key")

// Wallet holds one account's signing key.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// LoadWallet parses a hex private key, with or without 0x prefix.
func LoadWallet(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrInvalidKey
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// AddressFromKey derives the checksummed address for a hex private key.
func AddressFromKey(hexKey string) (string, error) {
	w, err := LoadWallet(hexKey)
	if err != nil {
		return "", err
	}
	return w.Address(), nil
}

// Address returns the checksummed wallet address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// Sign returns the 0x-prefixed personal_sign signature of message.
func (w *Wallet) Sign(_ context.Context, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Recover returns the address that produced a personal_sign signature.
func Recover(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature length %d, want %d", len(sig), crypto.SignatureLength)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
