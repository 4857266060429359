package agreement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/status-escrow/account"
	gocommon "github.com/status-im/status-escrow/common"
	"github.com/status-im/status-escrow/contracts"
	agreementcontract "github.com/status-im/status-escrow/contracts/agreement"
	"github.com/status-im/status-escrow/logutils"
	"github.com/status-im/status-escrow/metrics"
	"github.com/status-im/status-escrow/transactions"
)

// Backend is the ledger surface needed to read, write and deploy agreements.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// PendingTx is the handle of a submitted request that is not final yet.
type PendingTx struct {
	ID        string
	Action    Action
	Hash      common.Hash
	From      common.Address
	To        common.Address
	Tx        *types.Transaction
	Submitted time.Time
}

type Option func(*Binding)

// WithTracker registers submitted requests with tm instead of a private tracker.
func WithTracker(tm *transactions.TransactionManager) Option {
	return func(b *Binding) {
		b.tracker = tm
	}
}

// Binding ties a session to one agreement address. It never changes target.
type Binding struct {
	address  common.Address
	session  *account.Session
	backend  Backend
	contract *agreementcontract.Agreement
	abi      *abi.ABI
	tracker  *transactions.TransactionManager

	readSeq atomic.Uint64
	logger  *zap.Logger
}

// Bind validates address and session and returns a binding. No ledger call is made.
func Bind(address string, session *account.Session, backend Backend, opts ...Option) (*Binding, error) {
	agreementAddress, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	if gocommon.IsNil(backend) {
		return nil, ErrNoBackend
	}

	maker := &contracts.ContractMaker{Backend: backend}
	contract, err := maker.NewAgreement(agreementAddress)
	if err != nil {
		return nil, err
	}
	parsed, err := agreementcontract.AgreementMetaData.GetAbi()
	if err != nil {
		return nil, err
	}

	b := &Binding{
		address:  agreementAddress,
		session:  session,
		backend:  backend,
		contract: contract,
		abi:      parsed,
		logger:   logutils.ZapLogger().Named("agreement").With(zap.Stringer("agreement", agreementAddress)),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.tracker == nil {
		b.tracker = transactions.NewTransactionManager(nil, 0, 0)
	}
	return b, nil
}

func (b *Binding) Address() common.Address {
	return b.address
}

func (b *Binding) Session() *account.Session {
	return b.session
}

func (b *Binding) Tracker() *transactions.TransactionManager {
	return b.tracker
}

// Read fetches the five agreement fields. A failed read returns *ReadError and
// never a partial snapshot.
func (b *Binding) Read(ctx context.Context) (*Snapshot, error) {
	seq := b.readSeq.Add(1)

	client, freelancer, text, amount, status, err := b.contract.GetDetails(b.session.CallOpts(ctx))
	if err != nil {
		metrics.RecordRead("error")
		b.logger.Warn("read failed", zap.Error(err))
		return nil, &ReadError{Cause: err}
	}
	if !Status(status).Valid() {
		metrics.RecordRead("error")
		return nil, &ReadError{Cause: fmt.Errorf("unknown agreement status %d", status)}
	}
	metrics.RecordRead("ok")

	return &Snapshot{
		Agreement:  b.address,
		Client:     client,
		Freelancer: freelancer,
		Text:       text,
		Amount:     amount,
		Status:     Status(status),
		ReadAt:     time.Now(),
		seq:        seq,
	}, nil
}

// Write submits action and returns as soon as the ledger accepted the signed
// request. The request is simulated first so a predictable revert is reported
// before anything is signed.
func (b *Binding) Write(ctx context.Context, action Action) (*PendingTx, error) {
	method := action.Method()
	if method == "" {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAction, int(action))
	}

	input, err := b.abi.Pack(method)
	if err != nil {
		return nil, err
	}
	from := b.session.Address()
	_, err = b.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &b.address, Data: input}, nil)
	if err != nil {
		b.logger.Info("request rejected by simulation", zap.String("action", action.String()), zap.Error(err))
		return nil, classifySubmitError(err)
	}

	var tx *types.Transaction
	opts := b.session.TransactOpts(ctx)
	switch action {
	case ActionConfirmWork:
		tx, err = b.contract.ConfirmWork(opts)
	case ActionReleasePayment:
		tx, err = b.contract.ReleasePayment(opts)
	}
	if err != nil {
		b.logger.Info("submission failed", zap.String("action", action.String()), zap.Error(err))
		return nil, classifySubmitError(err)
	}

	pending := &PendingTx{
		ID:        uuid.NewString(),
		Action:    action,
		Hash:      tx.Hash(),
		From:      from,
		To:        b.address,
		Tx:        tx,
		Submitted: time.Now(),
	}
	b.track(pending, transactions.PendingTrxType(action.String()))
	return pending, nil
}

func (b *Binding) track(pending *PendingTx, trxType transactions.PendingTrxType) {
	err := b.tracker.AddPending(&transactions.PendingTransaction{
		Hash:      pending.Hash,
		Timestamp: uint64(pending.Submitted.Unix()),
		From:      pending.From,
		To:        pending.To,
		Type:      trxType,
		ChainID:   b.session.ChainID().Uint64(),
		ActionID:  pending.ID,
	})
	if err != nil {
		b.logger.Error("failed to track pending request", zap.Stringer("hash", pending.Hash), zap.Error(err))
	}
}

// AwaitFinality blocks until the ledger finalized pending or ctx ends. A failed
// receipt is returned together with *RemoteRevert.
func (b *Binding) AwaitFinality(ctx context.Context, pending *PendingTx) (*types.Receipt, error) {
	receipt, err := b.tracker.Watch(ctx, pending.Hash, b.backend)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return receipt, nil
	}
	return receipt, &RemoteRevert{Reason: b.replayRevertReason(ctx, pending, receipt)}
}

// replayRevertReason re-executes the failed request against the state it was
// mined on top of to recover the revert message.
func (b *Binding) replayRevertReason(ctx context.Context, pending *PendingTx, receipt *types.Receipt) string {
	if pending.Tx == nil || pending.Tx.To() == nil {
		return ""
	}
	var block *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}
	_, err := b.backend.CallContract(ctx, ethereum.CallMsg{
		From:  pending.From,
		To:    pending.Tx.To(),
		Gas:   pending.Tx.Gas(),
		Value: pending.Tx.Value(),
		Data:  pending.Tx.Data(),
	}, block)
	reason, _ := RevertReason(err)
	return reason
}

func classifySubmitError(err error) error {
	if errors.Is(err, account.ErrUserRejected) || errors.Is(err, bind.ErrNotAuthorized) {
		return fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
	}
	if reason, ok := RevertReason(err); ok {
		return &RemoteRevert{Reason: reason, Cause: err}
	}
	return &SubmissionError{Cause: err}
}

// DeployRequest describes a new agreement created by the session's identity,
// which becomes its client.
type DeployRequest struct {
	Freelancer string
	Text       string
	// Amount is the escrowed payment in wei, sent along with the creation.
	Amount *big.Int
}

// Deploy submits the creation of a new agreement and returns its address and
// the pending handle. tracker may be nil.
func Deploy(ctx context.Context, session *account.Session, backend Backend, artifact *agreementcontract.Artifact, req DeployRequest, tracker *transactions.TransactionManager) (common.Address, *PendingTx, error) {
	if session == nil {
		return common.Address{}, nil, ErrNoSession
	}
	if gocommon.IsNil(backend) {
		return common.Address{}, nil, ErrNoBackend
	}
	if artifact == nil || len(artifact.Bytecode) == 0 {
		return common.Address{}, nil, ErrBytecodeMissing
	}
	if req.Freelancer == "" || req.Text == "" || req.Amount == nil {
		return common.Address{}, nil, ErrMissingField
	}
	freelancer, err := ParseAddress(req.Freelancer)
	if err != nil {
		return common.Address{}, nil, err
	}
	if req.Amount.Sign() <= 0 {
		return common.Address{}, nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	opts := session.TransactOpts(ctx)
	opts.Value = new(big.Int).Set(req.Amount)
	address, tx, _, err := agreementcontract.DeployAgreement(opts, backend, artifact, freelancer, req.Text)
	if err != nil {
		if errors.Is(err, agreementcontract.ErrNoBytecode) {
			return common.Address{}, nil, ErrBytecodeMissing
		}
		return common.Address{}, nil, classifySubmitError(err)
	}

	pending := &PendingTx{
		ID:        uuid.NewString(),
		Hash:      tx.Hash(),
		From:      session.Address(),
		To:        address,
		Tx:        tx,
		Submitted: time.Now(),
	}
	if tracker != nil {
		err = tracker.AddPending(&transactions.PendingTransaction{
			Hash:      pending.Hash,
			Timestamp: uint64(pending.Submitted.Unix()),
			From:      pending.From,
			To:        address,
			Type:      transactions.DeployAgreement,
			ChainID:   session.ChainID().Uint64(),
			ActionID:  pending.ID,
		})
		if err != nil {
			logutils.ZapLogger().Error("failed to track deployment", zap.Stringer("hash", pending.Hash), zap.Error(err))
		}
	}
	logutils.ZapLogger().Info("agreement deployment submitted",
		zap.Stringer("address", address), zap.Stringer("hash", pending.Hash))
	return address, pending, nil
}
