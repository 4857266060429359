package account

//go:generate mockgen -package=mock -source=accounts.go -destination=mock/provider.go

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/status-escrow/common"
	"github.com/status-im/status-escrow/logutils"
)

// errors
var (
	ErrProviderUnavailable = errors.New("identity provider is not available")
	ErrNoIdentity          = errors.New("identity provider returned no accounts")
	ErrUserRejected        = errors.New("user rejected the request")
	ErrNotConnected        = errors.New("no session, please connect")
)

// IdentityProvider supplies signing identities. It is the wallet side of a
// session and may prompt the user on every call.
type IdentityProvider interface {
	RequestAccounts(ctx context.Context) ([]gethcommon.Address, error)
	SignTx(ctx context.Context, account gethcommon.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Manager owns the single process-wide session.
type Manager struct {
	provider IdentityProvider
	chainID  *big.Int

	mu      sync.RWMutex
	session *Session
}

// NewManager returns new session manager. provider may be nil, Connect then
// fails with ErrProviderUnavailable.
func NewManager(provider IdentityProvider, chainID *big.Int) *Manager {
	return &Manager{
		provider: provider,
		chainID:  chainID,
	}
}

// Connect requests an identity from the provider and opens a session.
// Calling it again while connected returns the existing session without
// prompting the provider.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return m.session, nil
	}
	if common.IsNil(m.provider) {
		return nil, ErrProviderUnavailable
	}

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoIdentity
	}

	m.session = &Session{
		address:  accounts[0],
		provider: m.provider,
		chainID:  new(big.Int).Set(m.chainID),
	}
	logutils.ZapLogger().Info("session connected", zap.Stringer("address", m.session.address))
	return m.session, nil
}

// Session returns the active session or ErrNotConnected.
func (m *Manager) Session() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil, ErrNotConnected
	}
	return m.session, nil
}

// Disconnect drops the active session, used on teardown.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}

// Session is an immutable pair of an identity and the capability to sign for it.
type Session struct {
	address  gethcommon.Address
	provider IdentityProvider
	chainID  *big.Int
}

// NewSession builds a session directly, bypassing the manager.
func NewSession(address gethcommon.Address, provider IdentityProvider, chainID *big.Int) *Session {
	return &Session{
		address:  address,
		provider: provider,
		chainID:  new(big.Int).Set(chainID),
	}
}

func (s *Session) Address() gethcommon.Address {
	return s.address
}

func (s *Session) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// TransactOpts returns options that sign through the provider.
func (s *Session) TransactOpts(ctx context.Context) *bind.TransactOpts {
	return &bind.TransactOpts{
		From:    s.address,
		Context: ctx,
		Signer: func(address gethcommon.Address, tx *types.Transaction) (*types.Transaction, error) {
			if address != s.address {
				return nil, bind.ErrNotAuthorized
			}
			return s.provider.SignTx(ctx, address, tx, s.chainID)
		},
	}
}

func (s *Session) CallOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{
		From:    s.address,
		Context: ctx,
	}
}
