package account_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/status-im/status-escrow/account"
	"github.com/status-im/status-escrow/account/mock"
)

var (
	testChainID = big.NewInt(1337)
	testAddress = gethcommon.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func TestConnectWithoutProvider(t *testing.T) {
	m := account.NewManager(nil, testChainID)
	_, err := m.Connect(context.Background())
	require.ErrorIs(t, err, account.ErrProviderUnavailable)

	_, err = m.Session()
	require.ErrorIs(t, err, account.ErrNotConnected)
}

func TestConnectNoIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mock.NewMockIdentityProvider(ctrl)
	provider.EXPECT().RequestAccounts(gomock.Any()).Return(nil, nil)

	_, err := account.NewManager(provider, testChainID).Connect(context.Background())
	require.ErrorIs(t, err, account.ErrNoIdentity)
}

func TestConnectUserRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mock.NewMockIdentityProvider(ctrl)
	provider.EXPECT().RequestAccounts(gomock.Any()).Return(nil, account.ErrUserRejected)

	m := account.NewManager(provider, testChainID)
	_, err := m.Connect(context.Background())
	require.ErrorIs(t, err, account.ErrUserRejected)
	_, err = m.Session()
	require.ErrorIs(t, err, account.ErrNotConnected)
}

func TestConnectIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mock.NewMockIdentityProvider(ctrl)
	// only prompted once
	provider.EXPECT().RequestAccounts(gomock.Any()).Return([]gethcommon.Address{testAddress}, nil).Times(1)

	m := account.NewManager(provider, testChainID)
	first, err := m.Connect(context.Background())
	require.NoError(t, err)
	second, err := m.Connect(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, testAddress, first.Address())
	require.Equal(t, testChainID, first.ChainID())

	m.Disconnect()
	_, err = m.Session()
	require.ErrorIs(t, err, account.ErrNotConnected)
}

func TestTransactOptsSignsThroughProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tx := types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1)})
	provider := mock.NewMockIdentityProvider(ctrl)
	provider.EXPECT().SignTx(gomock.Any(), testAddress, tx, testChainID).Return(tx, nil)

	session := account.NewSession(testAddress, provider, testChainID)
	opts := session.TransactOpts(context.Background())
	require.Equal(t, testAddress, opts.From)

	signed, err := opts.Signer(testAddress, tx)
	require.NoError(t, err)
	require.Equal(t, tx, signed)

	_, err = opts.Signer(gethcommon.HexToAddress("0x02"), tx)
	require.Error(t, err)
}

func TestKeyProviderSigns(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	provider := account.NewKeyProvider(key)

	accounts, err := provider.RequestAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	tx := types.NewTx(&types.LegacyTx{Nonce: 0, Gas: 21000, GasPrice: big.NewInt(1)})
	signed, err := provider.SignTx(context.Background(), accounts[0], tx, testChainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(testChainID), signed)
	require.NoError(t, err)
	require.Equal(t, accounts[0], sender)

	_, err = provider.SignTx(context.Background(), testAddress, tx, testChainID)
	require.ErrorIs(t, err, account.ErrUserRejected)
}

func TestKeyProviderFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := "0x" + gethcommon.Bytes2Hex(crypto.FromECDSA(key))

	provider, err := account.NewKeyProviderFromHex(hexKey)
	require.NoError(t, err)
	accounts, err := provider.RequestAccounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), accounts[0])

	_, err = account.NewKeyProviderFromHex("not-a-key")
	require.Error(t, err)
}

func TestKeystoreProvider(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	passphrase := "secret"
	approve := true
	provider, err := account.NewKeystoreProvider(t.TempDir(),
		func(gethcommon.Address) (string, error) { return passphrase, nil },
		func(context.Context, gethcommon.Address, *types.Transaction) bool { return approve },
	)
	require.NoError(t, err)

	address, err := provider.ImportECDSA(key, "secret")
	require.NoError(t, err)

	accounts, err := provider.RequestAccounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []gethcommon.Address{address}, accounts)

	tx := types.NewTx(&types.LegacyTx{Nonce: 0, Gas: 21000, GasPrice: big.NewInt(1)})
	signed, err := provider.SignTx(context.Background(), address, tx, testChainID)
	require.NoError(t, err)
	sender, err := types.Sender(types.LatestSignerForChainID(testChainID), signed)
	require.NoError(t, err)
	require.Equal(t, address, sender)

	passphrase = "wrong"
	_, err = provider.SignTx(context.Background(), address, tx, testChainID)
	require.True(t, errors.Is(err, account.ErrUserRejected))

	passphrase = "secret"
	approve = false
	_, err = provider.SignTx(context.Background(), address, tx, testChainID)
	require.ErrorIs(t, err, account.ErrUserRejected)
}
