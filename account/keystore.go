package account

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// PassphraseFunc returns the passphrase unlocking account. Returning
// ErrUserRejected aborts signing.
type PassphraseFunc func(account gethcommon.Address) (string, error)

// AuthorizeFunc is asked before every signature. A nil AuthorizeFunc approves everything.
type AuthorizeFunc func(ctx context.Context, account gethcommon.Address, tx *types.Transaction) bool

// KeystoreProvider signs with keys from an encrypted key directory.
type KeystoreProvider struct {
	ks         *keystore.KeyStore
	passphrase PassphraseFunc
	authorize  AuthorizeFunc
}

// makeKeyStore creates key store with lightweight kdf.
func makeKeyStore(keydir string) (*keystore.KeyStore, error) {
	if keydir == "" {
		return nil, errors.New("keystore directory is not set")
	}
	if err := os.MkdirAll(keydir, 0700); err != nil {
		return nil, err
	}
	return keystore.NewKeyStore(keydir, keystore.LightScryptN, keystore.LightScryptP), nil
}

func NewKeystoreProvider(keydir string, passphrase PassphraseFunc, authorize AuthorizeFunc) (*KeystoreProvider, error) {
	ks, err := makeKeyStore(keydir)
	if err != nil {
		return nil, err
	}
	return &KeystoreProvider{
		ks:         ks,
		passphrase: passphrase,
		authorize:  authorize,
	}, nil
}

// ImportECDSA stores key encrypted with passphrase and returns its address.
func (p *KeystoreProvider) ImportECDSA(key *ecdsa.PrivateKey, passphrase string) (gethcommon.Address, error) {
	acc, err := p.ks.ImportECDSA(key, passphrase)
	if err != nil {
		return gethcommon.Address{}, err
	}
	return acc.Address, nil
}

func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]gethcommon.Address, error) {
	keys := p.ks.Accounts()
	addresses := make([]gethcommon.Address, 0, len(keys))
	for _, acc := range keys {
		addresses = append(addresses, acc.Address)
	}
	return addresses, nil
}

func (p *KeystoreProvider) SignTx(ctx context.Context, address gethcommon.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if p.authorize != nil && !p.authorize(ctx, address, tx) {
		return nil, ErrUserRejected
	}
	if p.passphrase == nil {
		return nil, ErrUserRejected
	}
	passphrase, err := p.passphrase(address)
	if err != nil {
		return nil, err
	}

	signed, err := p.ks.SignTxWithPassphrase(accounts.Account{Address: address}, passphrase, tx, chainID)
	if errors.Is(err, keystore.ErrDecrypt) {
		return nil, fmt.Errorf("%w: %v", ErrUserRejected, err)
	}
	return signed, err
}

// KeyProvider signs with a single in-memory key.
type KeyProvider struct {
	key     *ecdsa.PrivateKey
	address gethcommon.Address
}

func NewKeyProvider(key *ecdsa.PrivateKey) *KeyProvider {
	return &KeyProvider{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewKeyProviderFromHex parses a hex encoded private key, with or without 0x prefix.
func NewKeyProviderFromHex(hexKey string) (*KeyProvider, error) {
	if len(hexKey) > 1 && hexKey[0] == '0' && (hexKey[1] == 'x' || hexKey[1] == 'X') {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeyProvider(key), nil
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]gethcommon.Address, error) {
	return []gethcommon.Address{p.address}, nil
}

func (p *KeyProvider) SignTx(ctx context.Context, address gethcommon.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if address != p.address {
		return nil, ErrUserRejected
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
}
